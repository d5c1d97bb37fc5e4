package outputs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/rendering"
	"kiln/internal/services"
)

// mediaExtensions are the artifact types the fallback scan recognizes.
var mediaExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
	".gif":  {},
	".mp4":  {},
	".webm": {},
}

// Artifact is one produced file resolved to an absolute path.
type Artifact struct {
	Path    string
	NodeID  string
	Size    int64
	ModTime time.Time
}

// Locator resolves produced artifacts from a job result.
type Locator struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs a locator over the engine output directory.
func New(cfg *config.Config, logger *slog.Logger) *Locator {
	return &Locator{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "outputs"),
	}
}

// Locate resolves artifacts from the result's output descriptors. When no
// descriptor resolves to an existing file, it falls back to scanning the
// output directory for media written after the job was submitted. Finding
// nothing either way is a failure; the most recent media files of any age
// are logged to aid triage.
func (l *Locator) Locate(result *rendering.Result) ([]Artifact, error) {
	outputDir := l.cfg.EngineOutputDir()

	artifacts := l.fromDescriptors(result, outputDir)
	if len(artifacts) > 0 {
		l.logger.Info("artifacts resolved from result",
			logging.String(logging.FieldPromptID, result.PromptID),
			logging.Int("artifacts", len(artifacts)),
		)
		return artifacts, nil
	}

	matches, err := scanMedia(outputDir)
	if err != nil {
		return nil, services.Wrap(services.ErrLocate, "outputs", "locate", "scan output directory", err)
	}

	fallback := sinceSubmission(matches, result.SubmittedAt)
	if len(fallback) > 0 {
		logging.WarnWithContext(l.logger, "artifacts resolved by directory scan", "fallback_scan",
			logging.String(logging.FieldPromptID, result.PromptID),
			logging.Int("artifacts", len(fallback)),
			logging.String(logging.FieldImpact, "result descriptors did not resolve; artifact set is time-window based"),
			logging.String(logging.FieldErrorHint, "verify the graph ends in a save node"),
		)
		return fallback, nil
	}

	for _, m := range mostRecent(matches, 5) {
		l.logger.Warn("candidate ignored by fallback window",
			logging.String("path", m.Path),
			logging.Time("modified", m.ModTime),
			logging.Time("submitted", result.SubmittedAt),
		)
	}
	return nil, services.Wrap(services.ErrLocate, "outputs", "locate",
		fmt.Sprintf("no artifacts for prompt %s under %s", result.PromptID, outputDir), nil)
}

// fromDescriptors resolves every images[] entry against the output directory
// and keeps the ones that exist. Node order is stable so repeated runs store
// artifacts in the same order.
func (l *Locator) fromDescriptors(result *rendering.Result, outputDir string) []Artifact {
	nodeIDs := make([]string, 0, len(result.Outputs))
	for nodeID := range result.Outputs {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	seen := make(map[string]struct{})
	var artifacts []Artifact
	for _, nodeID := range nodeIDs {
		for _, image := range result.Outputs[nodeID].Images {
			if strings.TrimSpace(image.Filename) == "" {
				continue
			}
			path := filepath.Join(outputDir, image.Subfolder, image.Filename)
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			info, err := statFile(abs)
			if err != nil {
				l.logger.Warn("descriptor points at missing file",
					logging.String("path", abs),
					logging.String("node", nodeID),
				)
				continue
			}
			seen[abs] = struct{}{}
			artifacts = append(artifacts, Artifact{
				Path:    abs,
				NodeID:  nodeID,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}
	return artifacts
}

// sinceSubmission keeps matches modified strictly after the submission time,
// oldest first.
func sinceSubmission(matches []Artifact, submitted time.Time) []Artifact {
	var kept []Artifact
	for _, m := range matches {
		if m.ModTime.After(submitted) {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].ModTime.Equal(kept[j].ModTime) {
			return kept[i].Path < kept[j].Path
		}
		return kept[i].ModTime.Before(kept[j].ModTime)
	})
	return kept
}

// scanMedia walks the output directory collecting every media file of any
// age. A missing directory yields no matches.
func scanMedia(outputDir string) ([]Artifact, error) {
	var matches []Artifact
	err := filepath.WalkDir(outputDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := mediaExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		matches = append(matches, Artifact{Path: abs, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return matches, nil
}

func mostRecent(matches []Artifact, n int) []Artifact {
	sorted := make([]Artifact, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func statFile(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return info, nil
}
