package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"kiln/internal/config"
	"kiln/internal/daemon"
	"kiln/internal/logging"
	"kiln/internal/runlog"
	"kiln/internal/testsupport"
	"kiln/internal/worker"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *runlog.Store
	daemon     *daemon.Daemon
	apiAddr    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "kiln.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	wk, err := worker.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), wk)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		apiAddr:    d.Status().APIAddr,
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func seedRun(t *testing.T, store *runlog.Store) *runlog.Run {
	t.Helper()
	ctx := context.Background()
	run, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	started := time.Now().UTC().Add(-30 * time.Second)
	finished := time.Now().UTC()
	run.Status = runlog.StatusCompleted
	run.PromptID = "prompt-abc"
	run.StartedAt = &started
	run.FinishedAt = &finished
	if err := run.SetOutcome(runlog.Outcome{
		ArtifactPaths: []string{"/runpod-volume/kiln/output/render-1-a.png"},
		ArtifactCount: 1,
		StorageMode:   "volume",
	}); err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}
	return run
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	argv := make([]string, 0, len(args)+4)
	if apiAddr != "" {
		argv = append(argv, "--api", apiAddr)
	}
	if configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	cmd.SetArgs(append(argv, args...))

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
