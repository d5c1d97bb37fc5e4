package testsupport

import (
	"testing"

	"kiln/internal/config"
	"kiln/internal/runlog"
)

// MustOpenStore opens the run ledger for a test and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg)
	if err != nil {
		t.Fatalf("open run ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
