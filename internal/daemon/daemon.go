package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"kiln/internal/api"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/preflight"
	"kiln/internal/runlog"
	"kiln/internal/supervisor"
	"kiln/internal/worker"
)

// retentionInterval is how often the daemon sweeps old logs and ledger rows.
const retentionInterval = 6 * time.Hour

// Daemon coordinates the worker, run ledger, and HTTP API as one lifecycle
// and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *runlog.Store
	worker *worker.Worker
	api    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	sweeps  sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	EngineState  supervisor.State
	StorageMode  string
	APIAddr      string
	LedgerDBPath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *runlog.Store, logger *slog.Logger, wk *worker.Worker) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wk == nil {
		return nil, errors.New("daemon requires config, store, logger, and worker")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		worker:   wk,
		api:      api.NewServer(cfg, wk, store, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, logs preflight results, and brings up
// the HTTP API and the retention sweep.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another kilnd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.reportPreflight(runCtx)

	if err := d.api.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.sweeps.Add(1)
	go d.retentionLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("kilnd started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, waits for the retention sweep, stops the engine
// process, and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.sweeps.Wait()
	d.worker.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("kilnd stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		EngineState:  d.worker.EngineState(),
		StorageMode:  d.worker.StorageMode(),
		APIAddr:      d.api.Addr(),
		LedgerDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// reportPreflight logs failed checks and missing dependencies as warnings.
// Failures never abort startup: a detached volume may attach later, and runs
// fail with typed outcomes on their own.
func (d *Daemon) reportPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	for _, status := range preflight.CheckSystemDeps(d.cfg) {
		if status.Available {
			if status.Detail != "" {
				d.logger.Info("dependency available",
					logging.String("name", status.Name),
					logging.String("detail", status.Detail),
				)
			}
			continue
		}
		d.logger.Warn("dependency missing",
			logging.String("name", status.Name),
			logging.String("detail", status.Detail),
		)
	}
}

// retentionLoop prunes old engine logs and ledger rows until the daemon
// context ends. The first sweep runs immediately so short-lived containers
// still get cleanup.
func (d *Daemon) retentionLoop(ctx context.Context) {
	defer d.sweeps.Done()

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	d.sweepRetention(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepRetention(ctx)
		}
	}
}

func (d *Daemon) sweepRetention(ctx context.Context) {
	days := d.cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}

	logDir := d.cfg.Paths.LogDir
	removed := logging.CleanupOldLogs(d.logger, days, logging.RetentionTarget{
		Dir:     logDir,
		Pattern: "*.log",
		// The files currently being appended to must survive the sweep.
		Exclude: []string{
			filepath.Join(logDir, "kilnd.log"),
			filepath.Join(logDir, "engine-stdout.log"),
			filepath.Join(logDir, "engine-stderr.log"),
		},
	})
	if removed > 0 {
		d.logger.Info("old logs pruned", logging.Int("files", removed))
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	pruned, err := d.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "run ledger prune failed", "ledger_prune_failed",
			logging.Error(err),
		)
		return
	}
	if pruned > 0 {
		d.logger.Info("run ledger pruned", logging.Int64("rows", pruned))
	}
}
