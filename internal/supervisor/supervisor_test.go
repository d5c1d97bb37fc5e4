package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"kiln/internal/logging"
	"kiln/internal/services"
	"kiln/internal/testsupport"
)

type stubProber struct {
	mu           sync.Mutex
	readyAfter   int
	readyCalls   int
	neverReady   bool
	refreshErr   error
	refreshCalls int
}

func (s *stubProber) Ready(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyCalls++
	if s.neverReady {
		return false
	}
	return s.readyCalls > s.readyAfter
}

func (s *stubProber) RefreshModels(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	return s.refreshErr
}

func (s *stubProber) refreshed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func setHelperCommand(t *testing.T, mode string, capture *[][]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if capture != nil {
			*capture = append(*capture, append([]string{name}, args...))
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("KILN_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("KILN_HELPER_MODE") {
	case "serve":
		fmt.Println("engine booting")
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "torch import boom")
		os.Exit(3)
	default:
		os.Exit(0)
	}
}

func TestEnsureRunningReusesServingEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	spawned := 0
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		spawned++
		return exec.CommandContext(ctx, os.Args[0])
	}
	t.Cleanup(func() {
		commandContext = original
	})

	sup := New(cfg, &stubProber{}, logging.NewNop())
	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if spawned != 0 {
		t.Fatalf("spawned %d processes for a serving engine", spawned)
	}
	if sup.State() != StateRunning {
		t.Fatalf("State = %q, want %q", sup.State(), StateRunning)
	}

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("second EnsureRunning: %v", err)
	}
	if spawned != 0 {
		t.Fatal("idempotent call spawned a process")
	}
}

func TestEnsureRunningSpawnsUntilReady(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.PollInterval = 1
	cfg.Engine.StartupTimeout = 30
	cfg.Engine.ExtraArgs = []string{"--disable-metadata"}

	var captured [][]string
	setHelperCommand(t, "serve", &captured)

	prober := &stubProber{readyAfter: 2}
	sup := New(cfg, prober, logging.NewNop())
	sup.SetModelsProvisioned(true)
	t.Cleanup(sup.Stop)

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if sup.State() != StateRunning {
		t.Fatalf("State = %q, want %q", sup.State(), StateRunning)
	}

	if len(captured) != 1 {
		t.Fatalf("spawn count = %d, want 1", len(captured))
	}
	argv := captured[0]
	if argv[0] != cfg.Engine.Interpreter {
		t.Fatalf("interpreter = %q, want %q", argv[0], cfg.Engine.Interpreter)
	}
	joined := strings.Join(argv[1:], " ")
	for _, want := range []string{
		cfg.Engine.Script,
		"--listen " + cfg.Engine.Host,
		fmt.Sprintf("--port %d", cfg.Engine.Port),
		"--normalvram",
		"--preview-method auto",
		"--verbose",
		"--cache-lru 3",
		"--disable-metadata",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("launch args %q missing %q", joined, want)
		}
	}

	if prober.refreshed() != 1 {
		t.Fatalf("warm-up calls = %d, want 1", prober.refreshed())
	}

	data, err := os.ReadFile(sup.StdoutLogPath())
	if err != nil {
		t.Fatalf("read engine stdout log: %v", err)
	}
	if !strings.Contains(string(data), "engine booting") {
		t.Fatalf("engine stdout log %q missing helper output", string(data))
	}
}

func TestEnsureRunningFailsFastOnCrash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.PollInterval = 1
	cfg.Engine.StartupTimeout = 60

	setHelperCommand(t, "crash", nil)

	sup := New(cfg, &stubProber{neverReady: true}, logging.NewNop())

	start := time.Now()
	err := sup.EnsureRunning(context.Background())
	if err == nil {
		t.Fatal("expected startup failure")
	}
	if elapsed := time.Since(start); elapsed > 30*time.Second {
		t.Fatalf("crash took %v to surface, startup budget was waited out", elapsed)
	}
	if !errors.Is(err, services.ErrStartup) {
		t.Fatalf("error %v is not a startup failure", err)
	}
	if !strings.Contains(err.Error(), "torch import boom") {
		t.Fatalf("error %q missing engine output tail", err.Error())
	}
	if sup.State() != StateCrashed {
		t.Fatalf("State = %q, want %q", sup.State(), StateCrashed)
	}
}

func TestEnsureRunningTimesOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.PollInterval = 1
	cfg.Engine.StartupTimeout = 1

	setHelperCommand(t, "serve", nil)

	sup := New(cfg, &stubProber{neverReady: true}, logging.NewNop())
	t.Cleanup(sup.Stop)

	err := sup.EnsureRunning(context.Background())
	if err == nil {
		t.Fatal("expected startup timeout")
	}
	if !errors.Is(err, services.ErrStartup) {
		t.Fatalf("error %v is not a startup failure", err)
	}
	if !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("error %q does not describe the timeout", err.Error())
	}

	sup.Stop()
	if sup.State() != StateExited {
		t.Fatalf("State after Stop = %q, want %q", sup.State(), StateExited)
	}
}

func TestEnsureRunningWarmsAdoptedEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	prober := &stubProber{}
	sup := New(cfg, prober, logging.NewNop())
	sup.SetModelsProvisioned(true)

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if prober.refreshed() != 1 {
		t.Fatalf("warm-up calls = %d, want 1 for adopted engine", prober.refreshed())
	}
}

func TestEnsureRunningIgnoresWarmUpFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.PollInterval = 1
	cfg.Engine.StartupTimeout = 30

	setHelperCommand(t, "serve", nil)

	prober := &stubProber{readyAfter: 1, refreshErr: errors.New("refresh unavailable")}
	sup := New(cfg, prober, logging.NewNop())
	sup.SetModelsProvisioned(true)
	t.Cleanup(sup.Stop)

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if prober.refreshed() != 1 {
		t.Fatalf("warm-up calls = %d, want 1", prober.refreshed())
	}
}

func TestEnsureRunningSkipsWarmUpWithoutModels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.PollInterval = 1
	cfg.Engine.StartupTimeout = 30

	setHelperCommand(t, "serve", nil)

	prober := &stubProber{readyAfter: 1}
	sup := New(cfg, prober, logging.NewNop())
	t.Cleanup(sup.Stop)

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if prober.refreshed() != 0 {
		t.Fatalf("warm-up calls = %d, want 0", prober.refreshed())
	}
}

func TestLaunchArgsOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.ExtraArgs = []string{"--fast", "--disable-xformers"}

	args := launchArgs(cfg)
	if args[0] != cfg.Engine.Script {
		t.Fatalf("args[0] = %q, want script %q", args[0], cfg.Engine.Script)
	}
	last := args[len(args)-2:]
	if last[0] != "--fast" || last[1] != "--disable-xformers" {
		t.Fatalf("extra args not appended last: %v", args)
	}
}
