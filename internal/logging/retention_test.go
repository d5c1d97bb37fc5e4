package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiln/internal/logging"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("log data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestCleanupOldLogsPrunesAgedFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "engine-stdout-old.log", 10*24*time.Hour)
	fresh := writeAged(t, dir, "engine-stdout-fresh.log", time.Hour)
	excluded := writeAged(t, dir, "engine-stdout-live.log", 10*24*time.Hour)
	unmatched := writeAged(t, dir, "notes.txt", 10*24*time.Hour)

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "engine-*.log",
		Exclude: []string{excluded},
	})

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned, stat err=%v", old, err)
	}
	for _, keep := range []string{fresh, excluded, unmatched} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("expected %s to survive: %v", keep, err)
		}
	}
}

func TestCleanupOldLogsZeroRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "engine-stderr.log", 30*24*time.Hour)

	if removed := logging.CleanupOldLogs(logging.NewNop(), 0, logging.RetentionTarget{Dir: dir, Pattern: "*.log"}); removed != 0 {
		t.Fatalf("removed = %d with retention disabled, want 0", removed)
	}
	if _, err := os.Stat(old); err != nil {
		t.Fatalf("expected file to survive with retention disabled: %v", err)
	}
}
