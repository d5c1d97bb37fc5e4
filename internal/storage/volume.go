package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kiln/internal/config"
	"kiln/internal/fileutil"
	"kiln/internal/logging"
	"kiln/internal/services"
)

// VolumeStore copies artifacts onto the shared volume so they outlive the
// container.
type VolumeStore struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewVolume constructs a volume-backed store.
func NewVolume(cfg *config.Config, logger *slog.Logger) *VolumeStore {
	return &VolumeStore{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "storage"),
		now:    time.Now,
	}
}

// Mode identifies this store in run records.
func (s *VolumeStore) Mode() string { return ModeVolume }

// OutputDir returns the directory artifacts are copied into.
func (s *VolumeStore) OutputDir() string {
	return filepath.Join(s.cfg.Paths.VolumeDir, s.cfg.Storage.OutputDir)
}

// Store copies the artifact under a timestamped name and verifies the copy
// byte-for-byte before reporting success.
func (s *VolumeStore) Store(ctx context.Context, artifactPath, runID string) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "volume", "store cancelled", err)
	}

	dir := s.OutputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "volume", "create output directory", err)
	}

	name := fmt.Sprintf("render-%d-%s", s.now().Unix(), filepath.Base(artifactPath))
	dst, err := fileutil.EnsureUnique(filepath.Join(dir, name))
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "volume", "pick destination name", err)
	}

	digest, size, err := fileutil.CopyVerified(artifactPath, dst)
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "volume",
			fmt.Sprintf("copy %s", filepath.Base(artifactPath)), err)
	}

	s.logger.Info("artifact stored on volume",
		logging.String(logging.FieldRunID, runID),
		logging.String("path", dst),
		logging.Int64("bytes", size),
	)
	return StoreResult{
		Artifact: artifactPath,
		Location: dst,
		Mode:     ModeVolume,
		SHA256:   digest,
		Size:     size,
	}, nil
}
