package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
)

// Outcome classifies a provisioning attempt.
type Outcome string

const (
	// OutcomeSkipped means the correct link was already in place.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeLinked means the link was created (or repaired) this attempt.
	OutcomeLinked Outcome = "linked"
	// OutcomeLocalFallback means no usable volume library exists; the engine
	// runs against a plain local models directory.
	OutcomeLocalFallback Outcome = "local_fallback"
	// OutcomeFailed means provisioning could not produce a usable directory.
	// Callers continue without shared models.
	OutcomeFailed Outcome = "failed"
)

// candidateDirs are the model library layouts probed under the volume root,
// in priority order.
var candidateDirs = []string{
	filepath.Join("ComfyUI", "models"),
	"models",
	"comfyui_models",
}

// modelKinds are the subdirectories enumerated for the post-link inventory.
var modelKinds = []string{
	"checkpoints",
	"vae",
	"loras",
	"unet",
	"clip",
	"clip_vision",
	"text_encoders",
	"diffusion_models",
}

var modelPatterns = []string{"*.safetensors", "*.ckpt"}

// Report describes what provisioning did and what it made available.
type Report struct {
	Outcome   Outcome
	Reason    string
	Source    string
	Target    string
	Inventory map[string]int
}

// Provisioned reports whether the shared volume library backs the engine
// models directory after this attempt.
func (r Report) Provisioned() bool {
	return r.Outcome == OutcomeLinked || r.Outcome == OutcomeSkipped
}

// TotalModels sums the inventory counts.
func (r Report) TotalModels() int {
	total := 0
	for _, n := range r.Inventory {
		total += n
	}
	return total
}

// Provisioner reconciles the engine model directory against the volume.
type Provisioner struct {
	cfg      *config.Config
	logger   *slog.Logger
	interval time.Duration
}

// New constructs a provisioner. The poll interval for the volume mount wait
// comes from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "assets"),
		interval: time.Duration(cfg.Models.PollInterval) * time.Second,
	}
}

// Provision discovers the volume model library and points the engine models
// directory at it. Every failure is reported, never returned as an error:
// the run proceeds with whatever capability is left.
func (p *Provisioner) Provision(ctx context.Context) Report {
	target := p.cfg.EngineModelsDir()

	base, volumePresent := p.discoverBase(ctx)
	if !volumePresent {
		return p.ensureLocalModels(target, "volume mount never appeared")
	}

	source := p.findCandidate(base)
	if source == "" {
		report := Report{
			Outcome: OutcomeFailed,
			Reason:  fmt.Sprintf("no model directory under %s (tried %v)", base, candidateDirs),
			Target:  target,
		}
		p.logger.Warn("no volume model library found",
			logging.String("volume", base),
			logging.String(logging.FieldEventType, "models_not_found"),
			logging.String(logging.FieldErrorHint, "populate the volume with a ComfyUI/models tree"),
		)
		return report
	}

	if sameDir(source, target) {
		return p.ensureLocalModels(target, "volume library is the engine models directory")
	}

	if linked, err := pointsAt(target, source); err == nil && linked {
		report := Report{Outcome: OutcomeSkipped, Source: source, Target: target}
		report.Inventory = p.enumerate(source)
		p.logger.Info("model link already in place",
			logging.String("source", source),
			logging.String("target", target),
			logging.Int("models", report.TotalModels()),
		)
		return report
	}

	if err := p.replaceWithLink(target, source); err != nil {
		return Report{
			Outcome: OutcomeFailed,
			Reason:  err.Error(),
			Source:  source,
			Target:  target,
		}
	}

	report := Report{Outcome: OutcomeLinked, Source: source, Target: target}
	report.Inventory = p.enumerate(source)
	if report.TotalModels() == 0 {
		logging.WarnWithContext(p.logger, "volume library linked but empty", "models_empty",
			logging.String("source", source),
			logging.String(logging.FieldImpact, "graphs that load models will fail"),
			logging.String(logging.FieldErrorHint, "verify the volume holds *.safetensors or *.ckpt files"),
		)
	} else {
		p.logger.Info("volume models linked",
			logging.String("source", source),
			logging.String("target", target),
			logging.Int("models", report.TotalModels()),
		)
	}
	return report
}

// discoverBase waits (bounded) for the volume mount and falls back to the
// workspace when it never appears. The poll is cheap; mounts usually land in
// the first second or not at all.
func (p *Provisioner) discoverBase(ctx context.Context) (string, bool) {
	volume := p.cfg.Paths.VolumeDir
	if dirExists(volume) {
		return volume, true
	}

	deadline := time.Now().Add(time.Duration(p.cfg.Models.VolumeWaitTimeout) * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return p.cfg.Paths.WorkspaceDir, false
		case <-time.After(p.interval):
		}
		if dirExists(volume) {
			return volume, true
		}
	}

	p.logger.Warn("volume mount absent after wait",
		logging.String("volume", volume),
		logging.Int("wait_seconds", p.cfg.Models.VolumeWaitTimeout),
		logging.String(logging.FieldEventType, "volume_absent"),
	)
	return p.cfg.Paths.WorkspaceDir, false
}

func (p *Provisioner) findCandidate(base string) string {
	for _, rel := range candidateDirs {
		candidate := filepath.Join(base, rel)
		if dirExists(candidate) {
			return candidate
		}
	}
	return ""
}

// ensureLocalModels guarantees a plain directory exists so the engine can
// start without the shared library.
func (p *Provisioner) ensureLocalModels(target, reason string) Report {
	if linked, err := pointsAt(target, ""); err == nil && linked {
		// A dangling or foreign link would shadow the local directory.
		if err := os.Remove(target); err != nil {
			return Report{Outcome: OutcomeFailed, Reason: fmt.Sprintf("remove stale link: %v", err), Target: target}
		}
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return Report{Outcome: OutcomeFailed, Reason: fmt.Sprintf("create local models dir: %v", err), Target: target}
	}
	p.logger.Info("using local models directory",
		logging.String("target", target),
		logging.String("reason", reason),
	)
	return Report{Outcome: OutcomeLocalFallback, Reason: reason, Target: target}
}

// replaceWithLink reconciles whatever occupies the target path into a
// symlink pointing at source.
func (p *Provisioner) replaceWithLink(target, source string) error {
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove stale link %s: %w", target, err)
		}
	case err == nil && info.IsDir():
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove local models dir %s: %w", target, err)
		}
	case err == nil:
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove %s: %w", target, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("inspect %s: %w", target, err)
	}

	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", target, err)
		}
	}

	if err := os.Symlink(source, target); err != nil {
		// A concurrent provisioner may have won the race; accept its work
		// if it points at the same library.
		if errors.Is(err, fs.ErrExist) {
			if linked, verr := pointsAt(target, source); verr == nil && linked {
				return nil
			}
		}
		return fmt.Errorf("link %s -> %s: %w", target, source, err)
	}

	if resolved, err := filepath.EvalSymlinks(target); err != nil {
		return fmt.Errorf("verify link %s: %w", target, err)
	} else if !dirExists(resolved) {
		return fmt.Errorf("link %s resolves to missing directory %s", target, resolved)
	}
	return nil
}

// enumerate counts model files per known subdirectory. Diagnostic only.
func (p *Provisioner) enumerate(source string) map[string]int {
	inventory := make(map[string]int)
	for _, kind := range modelKinds {
		dir := filepath.Join(source, kind)
		count := 0
		for _, pattern := range modelPatterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				continue
			}
			count += len(matches)
		}
		if count > 0 {
			inventory[kind] = count
		}
	}
	return inventory
}

// pointsAt reports whether target is a symlink, and when source is non-empty
// whether it resolves to the same directory as source.
func pointsAt(target, source string) (bool, error) {
	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	if source == "" {
		return true, nil
	}
	return sameDir(target, source), nil
}

// sameDir resolves both paths through symlinks and compares them. Falls back
// to lexical comparison when either does not resolve.
func sameDir(a, b string) bool {
	resolvedA, errA := filepath.EvalSymlinks(a)
	resolvedB, errB := filepath.EvalSymlinks(b)
	if errA == nil && errB == nil {
		return resolvedA == resolvedB
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
