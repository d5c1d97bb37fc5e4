package worker

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"kiln/internal/assets"
	"kiln/internal/logging"
	"kiln/internal/runlog"
	"kiln/internal/services"
	"kiln/internal/services/comfyui"
)

const saveImageClass = "SaveImage"

func (w *Worker) process(ctx context.Context, logger *slog.Logger, run *runlog.Run, job Job) *Outcome {
	ctx = services.WithRunID(ctx, run.ID)

	// Provisioning is best effort: a failed report reduces capability
	// but never aborts the run.
	w.transition(ctx, logger, run, runlog.StatusProvisioning)
	report := w.provisioner.Provision(ctx)
	w.recordReport(report)
	w.supervisor.SetModelsProvisioned(report.Provisioned())
	if report.Outcome == assets.OutcomeFailed {
		logger.Warn("model provisioning failed",
			logging.String("reason", report.Reason),
			logging.String(logging.FieldImpact, "engine starts without shared models"))
	}
	if report.Outcome == assets.OutcomeLinked {
		w.settle(ctx, logger)
	}

	w.transition(ctx, logger, run, runlog.StatusStarting)
	if err := w.supervisor.EnsureRunning(ctx); err != nil {
		return w.fail(ctx, logger, run, err)
	}
	w.reportAvailability(ctx, logger)

	w.transition(ctx, logger, run, runlog.StatusRendering)
	if len(bytes.TrimSpace(job.Input.Workflow)) == 0 {
		return w.fail(ctx, logger, run,
			services.Wrap(services.ErrValidation, "worker", "parse_graph", "no workflow in job input", nil))
	}
	graph, err := comfyui.ParseGraph(job.Input.Workflow)
	if err != nil {
		return w.fail(ctx, logger, run,
			services.Wrap(services.ErrValidation, "worker", "parse_graph", "workflow rejected", err))
	}
	if saveNodes := graph.CountClass(saveImageClass); saveNodes == 0 {
		logger.Warn("graph has no SaveImage nodes",
			logging.String(logging.FieldImpact, "run may produce zero artifacts"))
	}

	handle, err := w.executor.Submit(ctx, graph)
	if err != nil {
		return w.fail(ctx, logger, run, err)
	}
	run.ClientID = handle.ClientID
	run.PromptID = handle.PromptID
	w.persist(ctx, logger, run)

	result, err := w.executor.AwaitCompletion(ctx, handle)
	if err != nil {
		return w.fail(ctx, logger, run, err)
	}

	w.transition(ctx, logger, run, runlog.StatusCollecting)
	artifacts, err := w.locator.Locate(result)
	if err != nil {
		return w.fail(ctx, logger, run, err)
	}

	w.transition(ctx, logger, run, runlog.StatusStoring)
	var paths []string
	var warnings []string
	for _, artifact := range artifacts {
		stored, err := w.storage.Store(ctx, artifact.Path, run.ID)
		if err != nil {
			logger.Warn("artifact storage failed",
				logging.String("artifact", artifact.Path),
				logging.Error(err))
			warnings = append(warnings, filepath.Base(artifact.Path)+": "+err.Error())
			continue
		}
		paths = append(paths, stored.Location)
		artifactsStored.WithLabelValues(stored.Mode).Inc()
	}
	if len(paths) == 0 {
		return w.fail(ctx, logger, run,
			services.Wrap(services.ErrStorage, "worker", "store_artifacts",
				"no artifact could be stored", nil))
	}

	return w.complete(ctx, logger, run, paths, warnings)
}

// settle gives the filesystem a beat after creating the model link so the
// engine's startup scan sees a stable directory.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger) {
	delay := time.Duration(w.cfg.Models.SettleDelay) * time.Second
	if delay <= 0 {
		return
	}
	logger.Debug("settling after model link", logging.Duration("delay", delay))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// reportAvailability logs what the engine can load. Diagnostic only; any
// failure here leaves the run on its normal path.
func (w *Worker) reportAvailability(ctx context.Context, logger *slog.Logger) {
	names, err := w.engine.CheckpointNames(ctx)
	if err != nil {
		logger.Warn("checkpoint inventory unavailable", logging.Error(err))
		return
	}
	if len(names) == 0 {
		logger.Warn("engine reports no loadable checkpoints",
			logging.String(logging.FieldImpact, "graphs that load checkpoints will fail"))
		return
	}
	logger.Info("engine checkpoint inventory", logging.Int("checkpoints", len(names)))
}

func (w *Worker) beginRun(ctx context.Context) *runlog.Run {
	if w.store != nil {
		run, err := w.store.Create(ctx)
		if err == nil {
			now := time.Now().UTC()
			run.StartedAt = &now
			return run
		}
		w.logger.Warn("run ledger unavailable", logging.Error(err))
	}
	now := time.Now().UTC()
	return &runlog.Run{
		ID:        ulid.Make().String(),
		Status:    runlog.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
}

func (w *Worker) transition(ctx context.Context, logger *slog.Logger, run *runlog.Run, status runlog.Status) {
	run.Status = status
	logger.Debug("run stage", logging.String("stage", string(status)))
	w.persist(ctx, logger, run)
}

func (w *Worker) persist(ctx context.Context, logger *slog.Logger, run *runlog.Run) {
	if w.store == nil {
		return
	}
	if err := w.store.Update(ctx, run); err != nil {
		logger.Warn("run ledger update failed", logging.Error(err))
	}
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, run *runlog.Run, cause error) *Outcome {
	stage := string(run.Status)
	kind := services.Classify(cause)
	now := time.Now().UTC()

	run.Status = runlog.StatusFailed
	run.ErrorMessage = cause.Error()
	run.FailureKind = string(kind)
	run.FinishedAt = &now
	w.persist(ctx, logger, run)

	runsTotal.WithLabelValues(StatusFailed).Inc()
	runFailures.WithLabelValues(string(kind)).Inc()
	logging.ErrorWithContext(logger, "run failed", "run_failed",
		logging.Error(cause),
		logging.String("stage", stage),
		logging.String("failure_kind", string(kind)),
		logging.String(logging.FieldErrorHint, errorHint(kind)))

	if w.notifier != nil {
		if err := w.notifier.NotifyRunFailed(ctx, run.ID, stage, cause); err != nil {
			logger.Warn("failure notification not delivered", logging.Error(err))
		}
	}

	return &Outcome{
		RunID:       run.ID,
		Status:      StatusFailed,
		Error:       cause.Error(),
		FailureKind: string(kind),
	}
}

func errorHint(kind services.Kind) string {
	switch kind {
	case services.KindStartup:
		return "check the engine stdout/stderr logs under the log directory"
	case services.KindSubmission, services.KindValidation:
		return "inspect the submitted workflow graph"
	case services.KindEngine:
		return "review node inputs and model availability"
	case services.KindTimeout:
		return "raise jobs.max_wait or verify the engine is making progress"
	case services.KindLocate:
		return "confirm the graph writes into the engine output directory"
	case services.KindStorage:
		return "verify the volume mount and storage configuration"
	default:
		return "check logs for details"
	}
}

func (w *Worker) complete(ctx context.Context, logger *slog.Logger, run *runlog.Run, paths, warnings []string) *Outcome {
	now := time.Now().UTC()
	run.Status = runlog.StatusCompleted
	run.FinishedAt = &now
	if err := run.SetOutcome(runlog.Outcome{
		ArtifactPaths: paths,
		ArtifactCount: len(paths),
		StorageMode:   w.storage.Mode(),
		Warnings:      warnings,
	}); err != nil {
		logger.Warn("run outcome not recorded", logging.Error(err))
	}
	w.persist(ctx, logger, run)

	runsTotal.WithLabelValues(StatusCompleted).Inc()
	logger.Info("run completed",
		logging.Int("artifacts", len(paths)),
		logging.Int("warnings", len(warnings)),
		logging.String("storage_mode", w.storage.Mode()),
		logging.Duration("elapsed", run.Duration()))

	if w.notifier != nil {
		if err := w.notifier.NotifyRunCompleted(ctx, run.ID, len(paths), run.Duration()); err != nil {
			logger.Warn("completion notification not delivered", logging.Error(err))
		}
	}

	return &Outcome{
		RunID:       run.ID,
		Status:      StatusCompleted,
		Paths:       paths,
		Links:       paths,
		Count:       len(paths),
		StorageMode: w.storage.Mode(),
		Warnings:    warnings,
	}
}
