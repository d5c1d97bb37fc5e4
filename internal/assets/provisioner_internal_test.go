package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiln/internal/logging"
	"kiln/internal/testsupport"
)

func TestDiscoverBaseFindsLateMount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Models.VolumeWaitTimeout = 5

	p := New(cfg, logging.NewNop())
	p.interval = 5 * time.Millisecond

	go func() {
		time.Sleep(25 * time.Millisecond)
		_ = os.MkdirAll(cfg.Paths.VolumeDir, 0o755)
	}()

	base, present := p.discoverBase(context.Background())
	if !present {
		t.Fatal("expected the late mount to be discovered")
	}
	if base != cfg.Paths.VolumeDir {
		t.Fatalf("base = %q, want %q", base, cfg.Paths.VolumeDir)
	}
}

func TestDiscoverBaseExpiredWaitFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Models.VolumeWaitTimeout = 0

	p := New(cfg, logging.NewNop())

	base, present := p.discoverBase(context.Background())
	if present {
		t.Fatal("expected no volume with a zero wait budget")
	}
	if base != cfg.Paths.WorkspaceDir {
		t.Fatalf("base = %q, want workspace %q", base, cfg.Paths.WorkspaceDir)
	}
}

func TestDiscoverBaseHonorsCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Models.VolumeWaitTimeout = 60

	p := New(cfg, logging.NewNop())
	p.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	base, present := p.discoverBase(ctx)
	if present {
		t.Fatal("expected no volume after cancellation")
	}
	if base != cfg.Paths.WorkspaceDir {
		t.Fatalf("base = %q, want workspace %q", base, cfg.Paths.WorkspaceDir)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation took %v, wait budget was ignored", elapsed)
	}
}

func TestEnumerateCountsKnownKinds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(testsupport.BaseDir(cfg), "library")
	testsupport.SeedModels(t, source, map[string][]string{
		"checkpoints":      {"base.safetensors", "base.ckpt"},
		"text_encoders":    {"t5.safetensors"},
		"diffusion_models": {"flux.safetensors"},
	})
	testsupport.WriteFile(t, filepath.Join(source, "checkpoints", "notes.md"), 4)
	testsupport.WriteFile(t, filepath.Join(source, "upscalers", "esrgan.safetensors"), 4)

	p := New(cfg, logging.NewNop())
	inventory := p.enumerate(source)

	want := map[string]int{
		"checkpoints":      2,
		"text_encoders":    1,
		"diffusion_models": 1,
	}
	if len(inventory) != len(want) {
		t.Fatalf("inventory = %v, want %v", inventory, want)
	}
	for kind, count := range want {
		if inventory[kind] != count {
			t.Fatalf("inventory[%q] = %d, want %d", kind, inventory[kind], count)
		}
	}
}
