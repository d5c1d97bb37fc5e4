package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"kiln/internal/assets"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/notifications"
	"kiln/internal/outputs"
	"kiln/internal/rendering"
	"kiln/internal/runlog"
	"kiln/internal/services/comfyui"
	"kiln/internal/storage"
	"kiln/internal/supervisor"
)

// Outcome status values.
const (
	StatusOK        = "ok"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is the event payload accepted by the worker.
type Job struct {
	Type  string   `json:"type,omitempty"`
	Input JobInput `json:"input"`
}

// JobInput carries the render graph.
type JobInput struct {
	Workflow json.RawMessage `json:"workflow,omitempty"`
}

// Heartbeat reports whether the event only keeps the worker warm.
func (j Job) Heartbeat() bool {
	return j.Type == "heartbeat"
}

// Outcome is the structured result of one run. Failures are outcomes too;
// nothing crosses the orchestrator boundary as a raw error.
type Outcome struct {
	RunID       string   `json:"run_id,omitempty"`
	Status      string   `json:"status"`
	Paths       []string `json:"volume_paths,omitempty"`
	Links       []string `json:"links,omitempty"`
	Count       int      `json:"total_images"`
	StorageMode string   `json:"storage_mode,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
	FailureKind string   `json:"failure_kind,omitempty"`
}

// Failed reports whether the run produced no accessible artifacts.
func (o *Outcome) Failed() bool {
	return o != nil && o.Status == StatusFailed
}

// Worker owns the render pipeline for one container lifetime.
type Worker struct {
	cfg         *config.Config
	store       *runlog.Store
	logger      *slog.Logger
	engine      *comfyui.Client
	provisioner *assets.Provisioner
	supervisor  *supervisor.Supervisor
	executor    *rendering.Executor
	locator     *outputs.Locator
	storage     storage.Store
	notifier    notifications.Service
	startedAt   time.Time

	// mu serializes runs; reportMu guards lastReport so health checks
	// never block behind an in-flight run.
	mu         sync.Mutex
	reportMu   sync.Mutex
	lastReport *assets.Report
}

// New wires the full pipeline from configuration. The run ledger may be nil;
// the worker then mints run IDs locally and records nothing.
func New(cfg *config.Config, store *runlog.Store, logger *slog.Logger) (*Worker, error) {
	return NewWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewWithNotifier constructs a worker with a custom notifier (used in tests).
func NewWithNotifier(cfg *config.Config, store *runlog.Store, logger *slog.Logger, notifier notifications.Service) (*Worker, error) {
	sink, err := storage.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine := comfyui.NewFromConfig(cfg)
	return &Worker{
		cfg:         cfg,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "worker"),
		engine:      engine,
		provisioner: assets.New(cfg, logger),
		supervisor:  supervisor.New(cfg, engine, logger),
		executor:    rendering.New(cfg, engine, logger),
		locator:     outputs.New(cfg, logger),
		storage:     sink,
		notifier:    notifier,
		startedAt:   time.Now(),
	}, nil
}

// Run executes one job to completion. Heartbeats short-circuit without
// touching the engine. Runs are serialized; concurrent callers queue.
func (w *Worker) Run(ctx context.Context, job Job) *Outcome {
	if job.Heartbeat() {
		heartbeatsTotal.Inc()
		w.logger.Info("heartbeat acknowledged")
		return &Outcome{Status: StatusOK}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	run := w.beginRun(ctx)
	logger := w.logger.With(logging.String(logging.FieldRunID, run.ID))
	logger.Info("run accepted")

	outcome := w.process(ctx, logger, run, job)
	runDuration.Observe(time.Since(start).Seconds())
	return outcome
}

// StartedAt returns when this worker was constructed (process uptime anchor).
func (w *Worker) StartedAt() time.Time {
	return w.startedAt
}

// EngineState reports the supervisor's view of the engine process.
func (w *Worker) EngineState() supervisor.State {
	return w.supervisor.State()
}

// EngineReady probes the engine over HTTP.
func (w *Worker) EngineReady(ctx context.Context) bool {
	return w.engine.Ready(ctx)
}

// StorageMode returns the active artifact storage mode.
func (w *Worker) StorageMode() string {
	return w.storage.Mode()
}

// LastProvisionReport returns the most recent provisioning report, if any
// run has provisioned yet.
func (w *Worker) LastProvisionReport() (assets.Report, bool) {
	w.reportMu.Lock()
	defer w.reportMu.Unlock()
	if w.lastReport == nil {
		return assets.Report{}, false
	}
	return *w.lastReport, true
}

func (w *Worker) recordReport(report assets.Report) {
	w.reportMu.Lock()
	w.lastReport = &report
	w.reportMu.Unlock()
}

// Stop terminates an engine process this worker spawned, if one is running.
func (w *Worker) Stop() {
	w.supervisor.Stop()
}
