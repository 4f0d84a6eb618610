package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q is not host:port: %w", c.Server.Bind, err)
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		return fmt.Errorf("provider.api_key is required. Set SCRIBE_PROVIDER_API_KEY env var or edit %s (create with 'scribe config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	retry := c.Reconcile.BotJoinedRetryMinutes
	ceiling := c.Reconcile.BotJoinedCeilingHours * 60
	if retry >= ceiling {
		return fmt.Errorf("reconcile.bot_joined_retry_minutes (%d) must be below reconcile.bot_joined_ceiling_hours (%dh)", retry, c.Reconcile.BotJoinedCeilingHours)
	}
	return nil
}
