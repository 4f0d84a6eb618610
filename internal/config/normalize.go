package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeProvider()
	c.normalizeStorage()
	c.normalizeDocs()
	c.normalizeNotifications()
	c.normalizePipeline()
	c.normalizeReconcile()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.WebhookToken = strings.TrimSpace(c.Server.WebhookToken)
}

func (c *Config) normalizeProvider() {
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBE_PROVIDER_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderRequestTimeout
	}
	if c.Provider.DownloadTimeout <= 0 {
		c.Provider.DownloadTimeout = defaultProviderDownloadTimeout
	}
	if c.Provider.LinkExpirationMinutes <= 0 {
		c.Provider.LinkExpirationMinutes = defaultLinkExpirationMinutes
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.KeyPrefix = strings.Trim(strings.TrimSpace(c.Storage.KeyPrefix), "/")
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = defaultStorageKeyPrefix
	}
	if c.Storage.PresignExpireMinutes <= 0 {
		c.Storage.PresignExpireMinutes = defaultPresignExpireMinutes
	}
	if c.Storage.AccessKeyID == "" {
		c.Storage.AccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	}
	if c.Storage.SecretAccessKey == "" {
		c.Storage.SecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	}
}

func (c *Config) normalizeDocs() {
	c.Docs.BaseURL = strings.TrimRight(strings.TrimSpace(c.Docs.BaseURL), "/")
	c.Docs.APIKey = strings.TrimSpace(c.Docs.APIKey)
	if c.Docs.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBE_DOCS_API_KEY"); ok {
			c.Docs.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Docs.RequestTimeout <= 0 {
		c.Docs.RequestTimeout = defaultDocsRequestTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.StepMaxAttempts <= 0 {
		c.Pipeline.StepMaxAttempts = defaultStepMaxAttempts
	}
	if c.Pipeline.RetryBaseDelaySeconds <= 0 {
		c.Pipeline.RetryBaseDelaySeconds = defaultRetryBaseDelaySeconds
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.PollIntervalSeconds <= 0 {
		c.Reconcile.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Reconcile.BotJoinedRetryMinutes <= 0 {
		c.Reconcile.BotJoinedRetryMinutes = defaultBotJoinedRetryMinutes
	}
	if c.Reconcile.BotJoinedCeilingHours <= 0 {
		c.Reconcile.BotJoinedCeilingHours = defaultBotJoinedCeilingHours
	}
	if c.Reconcile.RecordingRetryMinutes <= 0 {
		c.Reconcile.RecordingRetryMinutes = defaultRecordingRetryMinutes
	}
	if c.Reconcile.ShutdownGraceSeconds <= 0 {
		c.Reconcile.ShutdownGraceSeconds = defaultShutdownGraceSeconds
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
}
