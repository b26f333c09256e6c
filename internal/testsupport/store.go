package testsupport

import (
	"testing"

	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/ledger"
)

// MustOpenLedger opens a ledger store against the test config and registers
// cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close ledger store: %v", err)
		}
	})
	return store
}
