package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Provider.APIKey = "test"
	cfgVal.Storage.Bucket = "test-recordings"
	cfgVal.Storage.Region = "us-east-1"
	cfgVal.Storage.AccessKeyID = "test"
	cfgVal.Storage.SecretAccessKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProviderBaseURL points the bot gateway client at a test server.
func WithProviderBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.BaseURL = url
	}
}

// WithNotificationWebhook sets the chat webhook target on the test config.
func WithNotificationWebhook(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.WebhookURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
