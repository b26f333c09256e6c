package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nunotfc/amelie/internal/services"
)

const defaultHTTPTimeout = 15 * time.Second

// Sender delivers outbound messages to a conversation. The pipeline and
// dispatcher depend on this interface; Client is the HTTP bridge
// implementation.
type Sender interface {
	// SendText posts a plain message into a conversation.
	SendText(ctx context.Context, conversationID, text string) error
	// ReplyText posts a message quoting the original submission. Bridges
	// without quote support may deliver it as a plain message.
	ReplyText(ctx context.Context, conversationID, originID, text string) error
}

// Config captures the runtime settings for the chat bridge.
type Config struct {
	BaseURL        string
	APIToken       string
	TimeoutSeconds int
}

// Client talks to the chat bridge HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a bridge client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIToken:       strings.TrimSpace(cfg.APIToken),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

var _ Sender = (*Client)(nil)

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	QuotedID       string `json:"quoted_id,omitempty"`
}

// SendText posts a plain message into a conversation.
func (c *Client) SendText(ctx context.Context, conversationID, text string) error {
	return c.post(ctx, sendRequest{ConversationID: conversationID, Text: text})
}

// ReplyText posts a message quoting the original submission.
func (c *Client) ReplyText(ctx context.Context, conversationID, originID, text string) error {
	return c.post(ctx, sendRequest{ConversationID: conversationID, Text: text, QuotedID: originID})
}

func (c *Client) post(ctx context.Context, payload sendRequest) error {
	const op = "transport send"
	if strings.TrimSpace(payload.ConversationID) == "" {
		return services.NewError(services.KindGeneral, op, "conversation id required", nil)
	}
	if strings.TrimSpace(payload.Text) == "" {
		return services.NewError(services.KindGeneral, op, "text required", nil)
	}
	if c.cfg.BaseURL == "" {
		return services.NewError(services.KindGeneral, op, "base url required", nil)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.NewError(services.KindGeneral, op, "encode body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/messages", bytes.NewReader(encoded))
	if err != nil {
		return services.NewError(services.KindGeneral, op, "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.NewError(services.KindTimeout, op, "bridge timed out", err)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return services.NewError(services.KindTimeout, op, "bridge timed out", err)
		}
		return services.NewError(services.KindGeneral, op, "bridge unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := services.KindGeneral
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode >= http.StatusInternalServerError {
			kind = services.KindUnavailable
		}
		return services.NewError(kind, op, fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return nil
}
