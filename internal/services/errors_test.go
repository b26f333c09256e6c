package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nunotfc/amelie/internal/services"
)

func TestClassifyFindsWrappedKind(t *testing.T) {
	base := services.NewError(services.KindSafetyBlocked, "generate", "blocked", nil)
	wrapped := fmt.Errorf("analysis failed: %w", base)
	if got := services.Classify(wrapped); got != services.KindSafetyBlocked {
		t.Fatalf("expected safety_blocked, got %s", got)
	}
}

func TestClassifyDefaultsToGeneral(t *testing.T) {
	if got := services.Classify(errors.New("boom")); got != services.KindGeneral {
		t.Fatalf("expected general, got %s", got)
	}
}

func TestClassifyDeadlineAsTimeout(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", context.DeadlineExceeded)
	if got := services.Classify(wrapped); got != services.KindTimeout {
		t.Fatalf("expected timeout, got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind services.Kind
		want bool
	}{
		{services.KindTimeout, true},
		{services.KindGeneral, true},
		{services.KindQuota, true},
		{services.KindSafetyBlocked, false},
		{services.KindFileExpired, false},
		{services.KindFileForbidden, false},
		{services.KindUnavailable, false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.kind); got != tc.want {
			t.Fatalf("%s: expected retryable=%v, got %v", tc.kind, tc.want, got)
		}
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := services.NewError(services.KindTimeout, "upload", "deadline exceeded", errors.New("dial tcp"))
	msg := err.Error()
	if msg != "upload: deadline exceeded: dial tcp" {
		t.Fatalf("unexpected message: %q", msg)
	}
}
