package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/logs"
	"kiln/internal/services"
)

var commandContext = exec.CommandContext

// stopGrace is how long Stop waits for the engine to exit on SIGTERM before
// killing it.
const stopGrace = 5 * time.Second

// State describes the engine process lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateCrashed    State = "crashed"
	StateExited     State = "exited"
)

// EngineProber is the probe surface the supervisor needs from the engine
// client.
type EngineProber interface {
	Ready(ctx context.Context) bool
	RefreshModels(ctx context.Context) error
}

// Supervisor owns the engine process: it spawns it on demand, waits for the
// HTTP endpoint to come up, and reports lifecycle state. It never restarts a
// crashed engine on its own; the next EnsureRunning call spawns a fresh one.
type Supervisor struct {
	cfg    *config.Config
	client EngineProber
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	waitErr    chan error
	warmModels bool
}

// New constructs a supervisor around the given engine client.
func New(cfg *config.Config, client EngineProber, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "supervisor"),
		state:  StateNotStarted,
	}
}

// SetModelsProvisioned records whether the shared model library backs the
// engine. Warm-up only makes sense when it does.
func (s *Supervisor) SetModelsProvisioned(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmModels = ok
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StdoutLogPath returns the file the engine's stdout is appended to.
func (s *Supervisor) StdoutLogPath() string {
	return filepath.Join(s.cfg.Paths.LogDir, "engine-stdout.log")
}

// StderrLogPath returns the file the engine's stderr is appended to.
func (s *Supervisor) StderrLogPath() string {
	return filepath.Join(s.cfg.Paths.LogDir, "engine-stderr.log")
}

// EnsureRunning makes the engine endpoint serve requests. An already-serving
// engine (ours or externally started) is adopted without a spawn. Otherwise
// the engine is launched and polled until ready or until the startup budget
// runs out. A child that dies during startup fails the call immediately with
// the tail of its output.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client.Ready(ctx) {
		if s.state != StateRunning {
			s.logger.Info("engine already serving", logging.String("endpoint", s.cfg.EngineBaseURL()))
		}
		s.state = StateRunning
		// An adopted engine scanned its model directories before any
		// provisioning this run; refresh so it sees the linked library.
		s.warmUp(ctx)
		return nil
	}

	if exitErr, exited := s.reapChild(); exited && s.state == StateRunning {
		s.logger.Warn("engine exited since last probe",
			logging.Error(exitErr),
			logging.String(logging.FieldEventType, "engine_exited"),
		)
		s.state = StateExited
	}

	if s.cmd == nil {
		if err := s.spawn(); err != nil {
			s.state = StateCrashed
			return services.Wrap(services.ErrStartup, "supervisor", "spawn", "launch engine process", err)
		}
		s.state = StateStarting
	}

	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	s.state = StateRunning
	s.warmUp(ctx)
	return nil
}

// warmUp asks the engine to rescan model directories once per EnsureRunning
// when provisioning linked a library. Failures never block the run.
func (s *Supervisor) warmUp(ctx context.Context) {
	if !s.cfg.Engine.WarmModels || !s.warmModels {
		return
	}
	if err := s.client.RefreshModels(ctx); err != nil {
		s.logger.Warn("model warm-up failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "checkpoint list may be stale until the first render"),
		)
		return
	}
	s.logger.Info("model cache warmed")
}

// Stop terminates a child this supervisor started. Engines it merely adopted
// are left alone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	pid := s.cmd.Process.Pid
	_ = s.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-s.waitErr:
	case <-time.After(stopGrace):
		_ = s.cmd.Process.Kill()
		<-s.waitErr
	}
	s.cmd = nil
	s.waitErr = nil
	s.state = StateExited
	s.logger.Info("engine stopped", logging.Int("pid", pid))
}

func (s *Supervisor) spawn() error {
	stdout, err := openAppend(s.StdoutLogPath())
	if err != nil {
		return err
	}
	stderr, err := openAppend(s.StderrLogPath())
	if err != nil {
		stdout.Close()
		return err
	}

	args := launchArgs(s.cfg)
	cmd := commandContext(context.Background(), s.cfg.Engine.Interpreter, args...) //nolint:gosec
	cmd.Dir = s.cfg.Engine.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", s.cfg.Engine.Interpreter, err)
	}

	s.cmd = cmd
	s.waitErr = make(chan error, 1)
	go func(waitErr chan<- error) {
		err := cmd.Wait()
		stdout.Close()
		stderr.Close()
		waitErr <- err
	}(s.waitErr)

	s.logger.Info("engine launched",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("interpreter", s.cfg.Engine.Interpreter),
		logging.String("cwd", cmd.Dir),
		logging.String("endpoint", s.cfg.EngineBaseURL()),
	)
	return nil
}

// awaitReady polls the engine endpoint until it serves, the child dies, the
// startup budget expires, or the context is cancelled. Each pass checks the
// child first so a crashed engine fails the call without waiting out the
// full budget.
func (s *Supervisor) awaitReady(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Engine.StartupTimeout) * time.Second
	interval := time.Duration(s.cfg.Engine.PollInterval) * time.Second
	deadline := time.Now().Add(timeout)

	for {
		if exitErr, exited := s.reapChild(); exited {
			s.state = StateCrashed
			detail := fmt.Sprintf("engine exited during startup: %v", exitErr)
			if tail := s.outputTail(); tail != "" {
				detail += "\n" + tail
			}
			return services.Wrap(services.ErrStartup, "supervisor", "await_ready", detail, exitErr)
		}

		if s.client.Ready(ctx) {
			return nil
		}

		if !time.Now().Before(deadline) {
			detail := fmt.Sprintf("engine not ready after %ds", s.cfg.Engine.StartupTimeout)
			if tail := s.outputTail(); tail != "" {
				detail += "\n" + tail
			}
			return services.Wrap(services.ErrStartup, "supervisor", "await_ready", detail, nil)
		}

		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrStartup, "supervisor", "await_ready", "startup wait cancelled", ctx.Err())
		case <-time.After(interval):
		}
	}
}

// reapChild consumes the child's exit status if it has finished. The command
// slot is cleared so a later EnsureRunning spawns fresh.
func (s *Supervisor) reapChild() (error, bool) {
	if s.waitErr == nil {
		return nil, false
	}
	select {
	case err := <-s.waitErr:
		s.cmd = nil
		s.waitErr = nil
		return err, true
	default:
		return nil, false
	}
}

func (s *Supervisor) outputTail() string {
	limit := s.cfg.Engine.LogTailLines
	var parts []string
	for _, path := range []string{s.StdoutLogPath(), s.StderrLogPath()} {
		if snippet := logs.Snippet(path, limit); snippet != "" {
			parts = append(parts, filepath.Base(path)+":\n"+snippet)
		}
	}
	if len(parts) == 0 {
		return "no engine output captured"
	}
	return strings.Join(parts, "\n")
}

func launchArgs(cfg *config.Config) []string {
	args := []string{
		cfg.Engine.Script,
		"--listen", cfg.Engine.Host,
		"--port", strconv.Itoa(cfg.Engine.Port),
		"--normalvram",
		"--preview-method", "auto",
		"--verbose",
		"--cache-lru", "3",
	}
	return append(args, cfg.Engine.ExtraArgs...)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open engine log %s: %w", path, err)
	}
	return f, nil
}
