package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if strings.TrimSpace(c.Paths.VolumeDir) == "" {
		return errors.New("paths.volume_dir must be set")
	}
	if c.Paths.VolumeDir == c.Paths.StateDir {
		return errors.New("paths.state_dir must not equal paths.volume_dir")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.Dir) == "" {
		return errors.New("engine.dir must be set")
	}
	if strings.TrimSpace(c.Engine.Script) == "" {
		return errors.New("engine.script must be set")
	}
	if strings.TrimSpace(c.Engine.Interpreter) == "" {
		return errors.New("engine.interpreter must be set")
	}
	if c.Engine.Port < 1 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port must be between 1 and 65535, got %d", c.Engine.Port)
	}
	return ensurePositiveMap(map[string]int{
		"engine.startup_timeout": c.Engine.StartupTimeout,
		"engine.poll_interval":   c.Engine.PollInterval,
		"engine.request_timeout": c.Engine.RequestTimeout,
		"engine.log_tail_lines":  c.Engine.LogTailLines,
	})
}

func (c *Config) validateModels() error {
	if c.Models.VolumeWaitTimeout < 0 {
		return errors.New("models.volume_wait_timeout must be >= 0 (seconds)")
	}
	if c.Models.PollInterval <= 0 {
		return errors.New("models.poll_interval must be positive (seconds)")
	}
	if c.Models.SettleDelay < 0 {
		return errors.New("models.settle_delay must be >= 0 (seconds)")
	}
	return nil
}

func (c *Config) validateJobs() error {
	return ensurePositiveMap(map[string]int{
		"jobs.max_wait":      c.Jobs.MaxWait,
		"jobs.poll_interval": c.Jobs.PollInterval,
	})
}

func (c *Config) validateStorage() error {
	switch c.Storage.Mode {
	case "auto", "volume", "presign":
	default:
		return fmt.Errorf("storage.mode must be auto, volume, or presign, got %q", c.Storage.Mode)
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		return errors.New("storage.output_dir must be set")
	}
	if c.Storage.Mode == "presign" {
		if strings.TrimSpace(c.Storage.PresignEndpoint) == "" {
			return errors.New("storage.presign_endpoint must be set when storage.mode is presign (or set KILN_PRESIGN_ENDPOINT)")
		}
	}
	if c.Storage.PresignEndpoint != "" && !validURL(c.Storage.PresignEndpoint) {
		return fmt.Errorf("storage.presign_endpoint must be an http(s) URL, got %q", c.Storage.PresignEndpoint)
	}
	if c.Storage.PresignTimeout <= 0 {
		return errors.New("storage.presign_timeout must be positive (seconds)")
	}
	return nil
}

// validateAPI accepts an empty bind: that disables the worker API.
func (c *Config) validateAPI() error {
	bind := strings.TrimSpace(c.API.Bind)
	if bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(bind); err != nil {
		return fmt.Errorf("api.bind must be host:port, got %q", bind)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
