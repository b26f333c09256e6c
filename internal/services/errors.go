package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure from an external collaborator or stage worker.
// The classification is set by the boundary that produced the error, never
// inferred from message text.
type Kind string

const (
	// KindSafetyBlocked marks content rejected by the backend's safety layer.
	// Never retried; the submitter is told their content was blocked.
	KindSafetyBlocked Kind = "safety_blocked"
	// KindFileExpired marks a remote file reference that is no longer usable.
	KindFileExpired Kind = "file_expired"
	// KindFileForbidden marks a remote file the backend refuses to serve.
	KindFileForbidden Kind = "file_forbidden"
	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindUnavailable marks a call short-circuited by the open circuit breaker
	// or rejected because the backend is overloaded.
	KindUnavailable Kind = "service_unavailable"
	// KindQuota marks a quota/rate-limit rejection from the backend.
	KindQuota Kind = "quota_exceeded"
	// KindGeneral is the default classification for unrecognized failures.
	KindGeneral Kind = "general"
)

// Error carries a classification alongside the usual operation context.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", detail, e.Err)
	}
	return detail
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind Kind, op, message string, err error) *Error {
	if kind == "" {
		kind = KindGeneral
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Classify extracts the classification from an error chain.
// Plain context deadline errors classify as timeout; everything else
// unrecognized defaults to general.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneral
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindGeneral
}

// Retryable reports whether a failure of this kind may be retried at the
// stage level. Safety blocks and dead file references are final, and an
// unavailable service must not be hammered with retries.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindGeneral, KindQuota:
		return true
	default:
		return false
	}
}
