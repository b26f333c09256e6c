package inference_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nunotfc/amelie/internal/services"
	"github.com/nunotfc/amelie/internal/services/inference"
)

func newClient(t *testing.T, handler http.Handler) *inference.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := inference.NewClient(inference.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestUploadReturnsFileRef(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/upload/v1beta/files") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("unexpected content type %q", got)
		}
		w.Write([]byte(`{"file":{"name":"files/abc","uri":"https://files/abc","mimeType":"image/png","state":"ACTIVE"}}`))
	}))

	ref, err := client.Upload(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ref.Name != "files/abc" || ref.State != inference.FileActive {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	if _, err := client.Upload(context.Background(), nil, "image/png"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestFileStatusFailedStateIsError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"files/abc","state":"FAILED","error":{"message":"codec unsupported"}}`))
	}))

	ref, err := client.FileStatus(context.Background(), "files/abc")
	if err == nil {
		t.Fatal("expected error for failed file state")
	}
	if ref.State != inference.FileFailed {
		t.Fatalf("expected failed state, got %s", ref.State)
	}
}

func TestFileStatusSucceededStateIsReady(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"files/abc","uri":"https://files/abc","state":"SUCCEEDED"}`))
	}))

	ref, err := client.FileStatus(context.Background(), "files/abc")
	if err != nil {
		t.Fatalf("file status: %v", err)
	}
	if ref.State != inference.FileSucceeded {
		t.Fatalf("expected succeeded state, got %s", ref.State)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   services.Kind
	}{
		{http.StatusForbidden, services.KindFileForbidden},
		{http.StatusNotFound, services.KindFileExpired},
		{http.StatusTooManyRequests, services.KindQuota},
		{http.StatusServiceUnavailable, services.KindUnavailable},
		{http.StatusInternalServerError, services.KindUnavailable},
		{http.StatusBadRequest, services.KindGeneral},
	}
	for _, tc := range cases {
		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.FileStatus(context.Background(), "files/abc")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if kind := services.Classify(err); kind != tc.want {
			t.Fatalf("status %d: classified %s, want %s", tc.status, kind, tc.want)
		}
	}
}

func TestDeleteFileToleratesMissing(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	if err := client.DeleteFile(context.Background(), "files/gone"); err != nil {
		t.Fatalf("delete of missing file must be a no-op, got %v", err)
	}
}

func TestGenerateReturnsDescription(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"A red bicycle "},{"text":"against a wall."}]},"finishReason":"STOP"}]}`))
	}))

	text, err := client.Generate(context.Background(), inference.GenerateRequest{
		FileURI:   "https://files/abc",
		MimeType:  "image/png",
		Prompt:    inference.PromptFor("image/png", "long"),
		Verbosity: "long",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "A red bicycle against a wall." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGenerateSafetyBlockClassified(t *testing.T) {
	cases := []string{
		`{"promptFeedback":{"blockReason":"SAFETY"}}`,
		`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
	}
	for _, body := range cases {
		payload := body
		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(payload))
		}))
		_, err := client.Generate(context.Background(), inference.GenerateRequest{
			FileURI:  "https://files/abc",
			MimeType: "image/png",
			Prompt:   "describe",
		})
		if err == nil {
			t.Fatal("expected safety error")
		}
		if kind := services.Classify(err); kind != services.KindSafetyBlocked {
			t.Fatalf("classified %s, want %s", kind, services.KindSafetyBlocked)
		}
		if services.Retryable(services.Classify(err)) {
			t.Fatal("safety blocks must not be retryable")
		}
	}
}

func TestPromptForSelectsByKindAndVerbosity(t *testing.T) {
	long := inference.PromptFor("video/mp4", "long")
	short := inference.PromptFor("video/mp4", "short")
	if long == short {
		t.Fatal("expected distinct prompts per verbosity")
	}
	if inference.PromptFor("image/png", "long") == long {
		t.Fatal("expected distinct prompts per media kind")
	}
}
