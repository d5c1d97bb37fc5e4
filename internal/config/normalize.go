package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizeModels()
	c.normalizeJobs()
	c.normalizeStorage()
	c.normalizeAPI()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.VolumeDir) == "" {
		c.Paths.VolumeDir = defaultVolumeDir
	}
	if c.Paths.VolumeDir, err = expandPath(c.Paths.VolumeDir); err != nil {
		return fmt.Errorf("paths.volume_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = filepath.Join(c.Paths.WorkspaceDir, "kiln")
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	var err error
	if strings.TrimSpace(c.Engine.Dir) == "" {
		c.Engine.Dir = filepath.Join(c.Paths.WorkspaceDir, defaultEngineSubdir)
	}
	if c.Engine.Dir, err = expandPath(c.Engine.Dir); err != nil {
		return fmt.Errorf("engine.dir: %w", err)
	}
	c.Engine.Script = strings.TrimSpace(c.Engine.Script)
	if c.Engine.Script == "" {
		c.Engine.Script = defaultEngineScript
	}
	c.Engine.Interpreter = strings.TrimSpace(c.Engine.Interpreter)
	if c.Engine.Interpreter == "" {
		c.Engine.Interpreter = defaultEngineInterpreter
	}
	c.Engine.Host = strings.TrimSpace(c.Engine.Host)
	if c.Engine.Host == "" {
		c.Engine.Host = defaultEngineHost
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = defaultEnginePort
	}
	if c.Engine.StartupTimeout <= 0 {
		c.Engine.StartupTimeout = defaultEngineStartupTimeout
	}
	if c.Engine.PollInterval <= 0 {
		c.Engine.PollInterval = defaultEnginePollInterval
	}
	if c.Engine.RequestTimeout <= 0 {
		c.Engine.RequestTimeout = defaultEngineRequestTimeout
	}
	if c.Engine.LogTailLines <= 0 {
		c.Engine.LogTailLines = defaultEngineLogTailLines
	}
	return nil
}

func (c *Config) normalizeModels() {
	if c.Models.VolumeWaitTimeout < 0 {
		c.Models.VolumeWaitTimeout = 0
	}
	if c.Models.PollInterval <= 0 {
		c.Models.PollInterval = defaultModelsPollInterval
	}
	if c.Models.SettleDelay < 0 {
		c.Models.SettleDelay = 0
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.MaxWait <= 0 {
		c.Jobs.MaxWait = defaultJobMaxWait
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = defaultJobPollInterval
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	if c.Storage.Mode == "" {
		c.Storage.Mode = defaultStorageMode
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		c.Storage.OutputDir = defaultStorageOutputDir
	}
	c.Storage.PresignEndpoint = strings.TrimSpace(c.Storage.PresignEndpoint)
	if c.Storage.PresignEndpoint == "" {
		if value, ok := os.LookupEnv("KILN_PRESIGN_ENDPOINT"); ok {
			c.Storage.PresignEndpoint = strings.TrimSpace(value)
		}
	}
	if c.Storage.PresignTimeout <= 0 {
		c.Storage.PresignTimeout = defaultPresignTimeout
	}
}

// normalizeAPI keeps an explicit empty bind: that disables the worker API.
// Omitting the section entirely keeps the default bind from Default().
func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("KILN_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("KILN_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
