package testsupport

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"kiln/internal/config"
)

// ConfigOption adjusts the environment NewConfig builds for a test.
type ConfigOption func(*testEnv)

type testEnv struct {
	t    testing.TB
	base string
	cfg  *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The engine tree exists; the volume mount does not, so provisioning tests
// control exactly what the worker discovers.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.VolumeDir = filepath.Join(base, "volume")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Engine.Dir = filepath.Join(base, "workspace", "ComfyUI")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Models.VolumeWaitTimeout = 0
	cfg.Models.SettleDelay = 0

	env := testEnv{t: t, base: base, cfg: &cfg}
	env.mkdir(cfg.Engine.Dir)
	env.mkdir(cfg.Paths.StateDir)
	env.mkdir(cfg.Paths.LogDir)

	for _, opt := range opts {
		opt(&env)
	}
	return &cfg
}

func (e *testEnv) mkdir(dir string) {
	e.t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.t.Fatalf("mkdir %s: %v", dir, err)
	}
}

// WithVolume creates the volume mount directory up front.
func WithVolume() ConfigOption {
	return func(e *testEnv) {
		e.mkdir(e.cfg.Paths.VolumeDir)
	}
}

// WithVolumeLibrary creates the volume mount with a model library under the
// given relative layout (for example "ComfyUI/models").
func WithVolumeLibrary(rel string) ConfigOption {
	return func(e *testEnv) {
		e.mkdir(filepath.Join(e.cfg.Paths.VolumeDir, rel))
	}
}

// WithStubbedBinaries puts always-succeeding executables for the given names
// on PATH. With no names, the engine interpreter is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(e *testEnv) {
		if len(names) == 0 {
			names = []string{e.cfg.Engine.Interpreter}
		}
		binDir := filepath.Join(e.base, "bin")
		e.mkdir(binDir)
		for _, name := range names {
			stub := filepath.Join(binDir, name)
			if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				e.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		e.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}

// SetEngineEndpoint points the config's engine host/port at a test server URL.
func SetEngineEndpoint(t testing.TB, cfg *config.Config, serverURL string) {
	t.Helper()
	parsed, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("parse server url %q: %v", serverURL, err)
	}
	cfg.Engine.Host = parsed.Hostname()
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		t.Fatalf("parse server port %q: %v", parsed.Port(), err)
	}
	cfg.Engine.Port = port
}
