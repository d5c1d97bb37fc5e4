package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kiln/internal/logging"
	"kiln/internal/testsupport"
)

func TestVolumeStoreSuffixesCollidingNames(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVolume())
	artifact := filepath.Join(testsupport.BaseDir(cfg), "x.png")
	if err := os.WriteFile(artifact, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewVolume(cfg, logging.NewNop())
	frozen := time.Unix(1700000000, 0)
	store.now = func() time.Time { return frozen }

	first, err := store.Store(context.Background(), artifact, "run-1")
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	second, err := store.Store(context.Background(), artifact, "run-1")
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}

	if first.Location == second.Location {
		t.Fatalf("colliding stores share location %q", first.Location)
	}
	if !strings.HasSuffix(second.Location, "-x-1.png") {
		t.Fatalf("second location %q lacks the collision suffix", second.Location)
	}
}
