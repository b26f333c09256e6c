package convconfig_test

import (
	"context"
	"testing"

	"github.com/nunotfc/amelie/internal/convconfig"
	"github.com/nunotfc/amelie/internal/testsupport"
)

func newStore(t *testing.T) *convconfig.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := convconfig.Open(cfg)
	if err != nil {
		t.Fatalf("open settings store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetUnknownConversationReturnsDefaults(t *testing.T) {
	store := newStore(t)

	settings, err := store.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.Mode != convconfig.ModeLong {
		t.Fatalf("expected long mode default, got %s", settings.Mode)
	}
	if !settings.ImageEnabled || !settings.VideoEnabled {
		t.Fatalf("expected media enabled by default: %+v", settings)
	}
}

func TestSetRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.Set(ctx, convconfig.Settings{
		ConversationID: "conv-1",
		Mode:           convconfig.ModeShort,
		ImageEnabled:   true,
		VideoEnabled:   false,
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	settings, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.Mode != convconfig.ModeShort {
		t.Fatalf("expected short mode, got %s", settings.Mode)
	}
	if settings.VideoEnabled {
		t.Fatal("expected video disabled")
	}
	if settings.UpdatedAt.IsZero() {
		t.Fatal("expected updated timestamp")
	}
}

func TestSetModeKeepsOtherFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.SetMediaEnabled(ctx, "conv-1", "video", false); err != nil {
		t.Fatalf("disable video: %v", err)
	}
	if err := store.SetMode(ctx, "conv-1", convconfig.ModeShort); err != nil {
		t.Fatalf("set mode: %v", err)
	}

	settings, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings.Mode != convconfig.ModeShort || settings.VideoEnabled {
		t.Fatalf("settings not merged: %+v", settings)
	}
}

func TestSetRejectsUnknownMode(t *testing.T) {
	store := newStore(t)
	err := store.Set(context.Background(), convconfig.Settings{
		ConversationID: "conv-1",
		Mode:           convconfig.DescriptionMode("verbose"),
	})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestSetMediaEnabledRejectsUnknownKind(t *testing.T) {
	store := newStore(t)
	if err := store.SetMediaEnabled(context.Background(), "conv-1", "audio-book", true); err == nil {
		t.Fatal("expected error for unknown media kind")
	}
}
