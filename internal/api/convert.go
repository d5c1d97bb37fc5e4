package api

import (
	"kiln/internal/runlog"
)

// FromRun converts a ledger record to its API representation.
func FromRun(run *runlog.Run) Run {
	if run == nil {
		return Run{}
	}

	dto := Run{
		ID:           run.ID,
		Status:       string(run.Status),
		ClientID:     run.ClientID,
		PromptID:     run.PromptID,
		ErrorMessage: run.ErrorMessage,
		FailureKind:  run.FailureKind,
	}
	if outcome, err := run.Outcome(); err == nil {
		dto.ArtifactCount = outcome.ArtifactCount
		dto.ArtifactPaths = outcome.ArtifactPaths
		dto.StorageMode = outcome.StorageMode
		dto.Warnings = outcome.Warnings
	}
	if !run.CreatedAt.IsZero() {
		dto.CreatedAt = run.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !run.UpdatedAt.IsZero() {
		dto.UpdatedAt = run.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.UTC().Format(dateTimeFormat)
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = run.FinishedAt.UTC().Format(dateTimeFormat)
	}
	if elapsed := run.Duration(); elapsed > 0 {
		dto.DurationSeconds = elapsed.Seconds()
	}
	return dto
}

// FromRuns converts a slice of ledger records into API DTOs.
func FromRuns(runs []*runlog.Run) []Run {
	if len(runs) == 0 {
		return nil
	}
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// MergeRunStats normalizes ledger counts into a string-keyed map covering
// every pipeline status, so consumers render stable tables.
func MergeRunStats(stats map[runlog.Status]int) map[string]int {
	merged := make(map[string]int, len(runlog.Statuses()))
	for _, status := range runlog.Statuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}
