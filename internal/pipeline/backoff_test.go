package pipeline

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	base := 500 * time.Millisecond
	cap := 30 * time.Second

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		if got := backoffDelay(base, cap, attempt); got != expected {
			t.Fatalf("attempt %d: got %s, want %s", attempt, got, expected)
		}
	}
}

func TestBackoffDelayIsNonDecreasing(t *testing.T) {
	base := 250 * time.Millisecond
	cap := 10 * time.Second
	previous := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		delay := backoffDelay(base, cap, attempt)
		if delay < previous {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempt, delay, previous)
		}
		if delay > cap {
			t.Fatalf("delay exceeded cap at attempt %d: %s", attempt, delay)
		}
		previous = delay
	}
}

func TestBackoffDelayEdgeCases(t *testing.T) {
	if got := backoffDelay(0, time.Second, 5); got != 0 {
		t.Fatalf("zero base must yield zero delay, got %s", got)
	}
	if got := backoffDelay(time.Second, time.Second, -3); got != time.Second {
		t.Fatalf("negative attempt treated as zero, got %s", got)
	}
}
