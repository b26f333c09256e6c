package dedup

import (
	"testing"
	"time"
)

func newCacheAt(window time.Duration) (*Cache, *time.Time) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := New(window)
	cache.now = func() time.Time { return current }
	return cache, &current
}

func TestFirstSightingIsNotDuplicate(t *testing.T) {
	cache, _ := newCacheAt(time.Minute)
	if cache.Seen("msg-1") {
		t.Fatal("first sighting flagged as duplicate")
	}
	if !cache.Seen("msg-1") {
		t.Fatal("second sighting not flagged")
	}
}

func TestWindowExpiry(t *testing.T) {
	cache, now := newCacheAt(time.Minute)
	cache.Seen("msg-1")

	*now = now.Add(59 * time.Second)
	if !cache.Seen("msg-1") {
		t.Fatal("still inside window, expected duplicate")
	}

	*now = now.Add(2 * time.Minute)
	if cache.Seen("msg-1") {
		t.Fatal("window elapsed, expected fresh sighting")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	cache, now := newCacheAt(time.Minute)
	cache.Seen("old")
	*now = now.Add(2 * time.Minute)
	cache.Seen("fresh")

	removed := cache.Sweep()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 tracked id, got %d", cache.Len())
	}
}

func TestEmptyIDNeverDuplicate(t *testing.T) {
	cache, _ := newCacheAt(time.Minute)
	if cache.Seen("") || cache.Seen("") {
		t.Fatal("empty id must never be suppressed")
	}
}
