package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/daemon"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/testsupport"
)

func withWebhook(cfg *config.Config) {
	cfg.Server.Bind = "127.0.0.1:0"
	cfg.Server.WebhookToken = "hook-token"
}

func postSubmission(t *testing.T, addr, token string, payload daemon.SubmissionRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/api/submissions", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post submission: %v", err)
	}
	return resp
}

func TestWebhookAcceptsSubmission(t *testing.T) {
	cfg := testsupport.NewConfig(t, withWebhook)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	mediaPath := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(mediaPath, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	resp := postSubmission(t, d.WebhookAddr(), "hook-token", daemon.SubmissionRequest{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentPath:    mediaPath,
		MimeType:       "image/png",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted daemon.SubmissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.TransactionID == "" {
		t.Fatal("missing transaction id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		txn, err := store.Get(context.Background(), accepted.TransactionID)
		if err == nil && txn.Status == ledger.StatusDelivered {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("webhook submission never delivered")
}

func TestWebhookRejectsDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t, withWebhook)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	mediaPath := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(mediaPath, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	payload := daemon.SubmissionRequest{
		SubmissionID:   "msg-dup",
		ConversationID: "conv-1",
		ContentPath:    mediaPath,
		MimeType:       "image/png",
	}
	first := postSubmission(t, d.WebhookAddr(), "hook-token", payload)
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first submission: expected 202, got %d", first.StatusCode)
	}

	second := postSubmission(t, d.WebhookAddr(), "hook-token", payload)
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", second.StatusCode)
	}
}

func TestWebhookRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, withWebhook)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	resp := postSubmission(t, d.WebhookAddr(), "", daemon.SubmissionRequest{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentPath:    "/nonexistent",
		MimeType:       "image/png",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhookRejectsUnsupportedKind(t *testing.T) {
	cfg := testsupport.NewConfig(t, withWebhook)
	store := testsupport.MustOpenLedger(t, cfg)
	sender := &memorySender{}

	d := newDaemonWithStore(t, cfg, store, sender)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	resp := postSubmission(t, d.WebhookAddr(), "hook-token", daemon.SubmissionRequest{
		SubmissionID:   "msg-1",
		ConversationID: "conv-1",
		ContentPath:    "/tmp/whatever.pdf",
		MimeType:       "application/pdf",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}
