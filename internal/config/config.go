package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the worker container.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	VolumeDir    string `toml:"volume_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
}

// Engine contains configuration for the render engine process and its HTTP
// endpoint.
type Engine struct {
	Dir            string   `toml:"dir"`
	Script         string   `toml:"script"`
	Interpreter    string   `toml:"interpreter"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	ExtraArgs      []string `toml:"extra_args"`
	StartupTimeout int      `toml:"startup_timeout"`
	PollInterval   int      `toml:"poll_interval"`
	RequestTimeout int      `toml:"request_timeout"`
	WarmModels     bool     `toml:"warm_models"`
	LogTailLines   int      `toml:"log_tail_lines"`
}

// Models contains configuration for shared model volume provisioning.
type Models struct {
	VolumeWaitTimeout int `toml:"volume_wait_timeout"`
	PollInterval      int `toml:"poll_interval"`
	SettleDelay       int `toml:"settle_delay"`
}

// Jobs contains configuration for render job polling.
type Jobs struct {
	MaxWait      int `toml:"max_wait"`
	PollInterval int `toml:"poll_interval"`
}

// Storage contains configuration for artifact persistence.
type Storage struct {
	Mode            string `toml:"mode"`
	OutputDir       string `toml:"output_dir"`
	PresignEndpoint string `toml:"presign_endpoint"`
	PresignTimeout  int    `toml:"presign_timeout"`
}

// API contains configuration for the worker HTTP interface.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// Config encapsulates all configuration values for the worker.
//
// Configuration sections by subsystem:
//   - Paths: container directories (workspace, volume mount, state, logs)
//   - Engine: render engine install location, launch args, readiness timing
//   - Models: shared volume discovery and symlink provisioning timing
//   - Jobs: render submission polling deadlines
//   - Storage: artifact persistence mode (volume copy or presigned upload)
//   - API: worker HTTP bind address and optional bearer token
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Models        Models        `toml:"models"`
	Jobs          Jobs          `toml:"jobs"`
	Storage       Storage       `toml:"storage"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kiln/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kiln.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation. The
// engine and volume trees are created best-effort because provisioning
// reconciles them later and must see their true state.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.WorkspaceDir) != "" {
		_ = os.MkdirAll(c.Paths.WorkspaceDir, 0o755)
	}
	return nil
}

// EngineBaseURL returns the engine HTTP endpoint root.
func (c *Config) EngineBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Engine.Host, c.Engine.Port)
}

// EngineMainScript returns the absolute path of the engine entry script.
func (c *Config) EngineMainScript() string {
	return filepath.Join(c.Engine.Dir, c.Engine.Script)
}

// EngineModelsDir returns the model directory the provisioner links.
func (c *Config) EngineModelsDir() string {
	return filepath.Join(c.Engine.Dir, "models")
}

// EngineOutputDir returns the directory the engine writes artifacts into.
func (c *Config) EngineOutputDir() string {
	return filepath.Join(c.Engine.Dir, "output")
}

// RunDBPath returns the run ledger database location.
func (c *Config) RunDBPath() string {
	return filepath.Join(c.Paths.StateDir, "kiln.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "kilnd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// StorageModeResolved returns the effective storage mode after applying the
// auto rule: presign when an endpoint is configured, volume otherwise.
func (c *Config) StorageModeResolved() string {
	mode := strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	if mode == "" || mode == "auto" {
		if strings.TrimSpace(c.Storage.PresignEndpoint) != "" {
			return "presign"
		}
		return "volume"
	}
	return mode
}

func validURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
