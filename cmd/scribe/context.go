package main

import (
	"strings"
	"sync"

	"scribe/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// serverAddress resolves the daemon API address: the --server flag wins,
// otherwise the configured bind address.
func (c *commandContext) serverAddress() (string, error) {
	if c.serverFlag != nil {
		if addr := strings.TrimSpace(*c.serverFlag); addr != "" {
			return addr, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Server.Bind, nil
}

func (c *commandContext) client() (*apiClient, error) {
	addr, err := c.serverAddress()
	if err != nil {
		return nil, err
	}
	return newAPIClient(addr), nil
}
