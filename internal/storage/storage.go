package storage

import (
	"context"
	"fmt"
	"log/slog"

	"kiln/internal/config"
)

// Storage modes. These values appear in run records and configuration.
const (
	ModeVolume  = "volume"
	ModePresign = "presign"
)

// StoreResult records one persisted artifact.
type StoreResult struct {
	Artifact string `json:"artifact"`
	Location string `json:"location"`
	Mode     string `json:"mode"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
}

// Store persists one artifact per call. Implementations do not retry; the
// orchestrator records per-artifact failures and carries on.
type Store interface {
	Store(ctx context.Context, artifactPath, runID string) (StoreResult, error)
	Mode() string
}

// New selects the store implementation for the configured mode.
func New(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch mode := cfg.StorageModeResolved(); mode {
	case ModeVolume:
		return NewVolume(cfg, logger), nil
	case ModePresign:
		return NewPresign(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage mode %q", mode)
	}
}
