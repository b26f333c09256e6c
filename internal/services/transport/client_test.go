package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nunotfc/amelie/internal/services"
	"github.com/nunotfc/amelie/internal/services/transport"
)

func newClient(t *testing.T, handler http.Handler) *transport.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return transport.NewClient(transport.Config{BaseURL: server.URL, APIToken: "token"})
}

func TestSendTextPostsMessage(t *testing.T) {
	var got map[string]string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.SendText(context.Background(), "conv-1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["conversation_id"] != "conv-1" || got["text"] != "hello" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if _, present := got["quoted_id"]; present {
		t.Fatal("plain send must not carry a quote")
	}
}

func TestReplyTextQuotesOrigin(t *testing.T) {
	var got map[string]string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))

	if err := client.ReplyText(context.Background(), "conv-1", "msg-9", "hi"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got["quoted_id"] != "msg-9" {
		t.Fatalf("expected quoted id, got %v", got)
	}
}

func TestSendClassifiesServerErrors(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := client.SendText(context.Background(), "conv-1", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := services.Classify(err); kind != services.KindUnavailable {
		t.Fatalf("classified %s, want %s", kind, services.KindUnavailable)
	}
}

func TestSendRequiresFields(t *testing.T) {
	client := transport.NewClient(transport.Config{BaseURL: "http://127.0.0.1:0"})
	if err := client.SendText(context.Background(), "", "text"); err == nil {
		t.Fatal("expected error for missing conversation id")
	}
	if err := client.SendText(context.Background(), "conv", ""); err == nil {
		t.Fatal("expected error for missing text")
	}
}
