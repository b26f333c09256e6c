package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nunotfc/amelie/internal/config"
)

const userAgent = "Amelie-Go/0.1.0"

// Service defines the operator notification surface. All events are
// best-effort; callers log and continue when delivery fails.
type Service interface {
	NotifyBreakerOpened(ctx context.Context, failures int) error
	NotifyBreakerClosed(ctx context.Context) error
	NotifyPermanentFailure(ctx context.Context, transactionID, stage, kind string) error
	NotifyRecoveryCompleted(ctx context.Context, replayed, outboxDelivered int) error
	NotifyOutboxAbandoned(ctx context.Context, transactionID string, attempts int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
		errors:   cfg.Notifications.Errors,
		breaker:  cfg.Notifications.Breaker,
		recovery: cfg.Notifications.Recovery,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	errors   bool
	breaker  bool
	recovery bool
}

func (n *ntfyService) NotifyBreakerOpened(ctx context.Context, failures int) error {
	if !n.breaker {
		return nil
	}
	data := payload{
		title:    "Amelie - Breaker Open",
		message:  fmt.Sprintf("Inference circuit opened after %d consecutive failures. Submissions will be rejected until the backend recovers.", failures),
		tags:     []string{"amelie", "breaker", "open"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBreakerClosed(ctx context.Context) error {
	if !n.breaker {
		return nil
	}
	data := payload{
		title:   "Amelie - Breaker Closed",
		message: "Inference circuit closed, processing resumed.",
		tags:    []string{"amelie", "breaker", "closed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPermanentFailure(ctx context.Context, transactionID, stage, kind string) error {
	if !n.errors {
		return nil
	}
	transactionID = strings.TrimSpace(transactionID)
	data := payload{
		title:    "Amelie - Permanent Failure",
		message:  fmt.Sprintf("Transaction %s failed permanently at %s (%s)", transactionID, stage, kind),
		tags:     []string{"amelie", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecoveryCompleted(ctx context.Context, replayed, outboxDelivered int) error {
	if !n.recovery {
		return nil
	}
	if replayed == 0 && outboxDelivered == 0 {
		return nil
	}
	data := payload{
		title:   "Amelie - Recovery Complete",
		message: fmt.Sprintf("Startup recovery delivered %d replayed results and %d outbox entries", replayed, outboxDelivered),
		tags:    []string{"amelie", "recovery", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOutboxAbandoned(ctx context.Context, transactionID string, attempts int) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Amelie - Delivery Abandoned",
		message:  fmt.Sprintf("Outbox entry for transaction %s abandoned after %d attempts", strings.TrimSpace(transactionID), attempts),
		tags:     []string{"amelie", "outbox", "abandoned"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Amelie - Test",
		message:  "Notification system test",
		tags:     []string{"amelie", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBreakerOpened(context.Context, int) error                  { return nil }
func (noopService) NotifyBreakerClosed(context.Context) error                       { return nil }
func (noopService) NotifyPermanentFailure(context.Context, string, string, string) error { return nil }
func (noopService) NotifyRecoveryCompleted(context.Context, int, int) error         { return nil }
func (noopService) NotifyOutboxAbandoned(context.Context, string, int) error        { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
