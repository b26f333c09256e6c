package ledger_test

import (
	"testing"

	"github.com/nunotfc/amelie/internal/ledger"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  ledger.Status
		ok    bool
	}{
		{"created", ledger.StatusCreated, true},
		{"  Delivered ", ledger.StatusDelivered, true},
		{"FAILURE_PERMANENT", ledger.StatusFailurePermanent, true},
		{"", "", false},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		got, ok := ledger.ParseStatus(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseStatus(%q): ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range ledger.AllStatuses() {
		terminal := status == ledger.StatusDelivered || status == ledger.StatusFailurePermanent
		if status.Terminal() != terminal {
			t.Fatalf("%s: Terminal() = %v, want %v", status, status.Terminal(), terminal)
		}
	}
}

func TestSuccessRateEmpty(t *testing.T) {
	var summary ledger.StatsSummary
	if rate := summary.SuccessRate(); rate != 0 {
		t.Fatalf("expected 0 rate for empty summary, got %f", rate)
	}
}
