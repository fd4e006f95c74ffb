package testsupport

import (
	"testing"

	"murmur/internal/config"
	"murmur/internal/runstate"
)

// MustOpenStore opens a runstate.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstate.Store {
	t.Helper()

	store, err := runstate.Open(cfg)
	if err != nil {
		t.Fatalf("runstate.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
