package api

import (
	"context"

	"kiln/internal/runlog"
)

// RunReader abstracts ledger persistence interactions needed for API queries.
type RunReader interface {
	List(ctx context.Context, limit int) ([]*runlog.Run, error)
	Stats(ctx context.Context) (map[runlog.Status]int, error)
	Get(ctx context.Context, id string) (*runlog.Run, error)
}

// RunService exposes read-only ledger operations returning API DTOs. The
// HTTP handlers and the CLI share it so both render identical views.
type RunService struct {
	store RunReader
}

// NewRunService constructs a RunService around the provided reader.
func NewRunService(store RunReader) *RunService {
	if store == nil {
		return nil
	}
	return &RunService{store: store}
}

// List returns the newest runs, up to limit.
func (s *RunService) List(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs), nil
}

// Stats returns run counts keyed by status string, zero-filled across the
// full pipeline.
func (s *RunService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return MergeRunStats(nil), nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeRunStats(stats), nil
}

// Describe fetches a single run. Missing runs return nil without error.
func (s *RunService) Describe(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	run, err := s.store.Get(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	dto := FromRun(run)
	return &dto, nil
}
