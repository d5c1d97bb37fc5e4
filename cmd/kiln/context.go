package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"kiln/internal/api"
	"kiln/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string
	loadConfig func() (*config.Config, error)
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	c := &commandContext{apiFlag: apiFlag, configFlag: configFlag}
	c.loadConfig = sync.OnceValues(func() (*config.Config, error) {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.loadConfig()
}

// apiBind resolves the kilnd address: the --api flag wins, the configured
// bind is the fallback.
func (c *commandContext) apiBind() (string, error) {
	if c.apiFlag != nil {
		if bind := strings.TrimSpace(*c.apiFlag); bind != "" {
			return bind, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(cfg.API.Bind), nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		bind, _ := c.apiBind()
		return wrapConnectError(err, bind)
	}
	return nil
}

func (c *commandContext) dialClient() (*api.Client, error) {
	bind, err := c.apiBind()
	if err != nil {
		return nil, err
	}

	var token string
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		token = cfg.API.Token
	}

	client, err := api.NewClient(bind, token)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("worker api is disabled; set [api].bind in the config or pass --api")
	}
	return client, nil
}

// wrapConnectError turns opaque transport failures into actionable hints.
func wrapConnectError(err error, bind string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to kilnd at %s: connection refused; start the daemon with `kilnd`", bind)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["noConfig"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
