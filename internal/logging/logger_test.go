package logging_test

import (
	"context"
	"strings"
	"testing"

	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewConsoleAndJSON(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		logger, err := logging.New(logging.Options{Format: format, OutputPaths: []string{"stdout"}})
		if err != nil {
			t.Fatalf("New(%s): %v", format, err)
		}
		if logger == nil {
			t.Fatalf("New(%s): nil logger", format)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithTransactionID(context.Background(), "tx-1")
	ctx = services.WithStage(ctx, "upload")

	fields := logging.ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 context fields, got %d", len(fields))
	}
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	joined := strings.Join(keys, ",")
	if !strings.Contains(joined, logging.FieldTransactionID) || !strings.Contains(joined, logging.FieldStage) {
		t.Fatalf("unexpected field keys: %s", joined)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	logger := logging.NewNop()
	logger.Info("ignored", logging.String("key", "value"), logging.Error(nil))
	logger = logging.WithContext(context.Background(), nil)
	logger.Debug("also ignored")
}
