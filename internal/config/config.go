package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains the HTTP listener settings for the webhook and management API.
type Server struct {
	Bind         string `toml:"bind"`
	WebhookToken string `toml:"webhook_token"`
}

// Provider contains configuration for the meeting-bot provider API.
type Provider struct {
	BaseURL               string `toml:"base_url"`
	APIKey                string `toml:"api_key"`
	RequestTimeout        int    `toml:"request_timeout"`
	DownloadTimeout       int    `toml:"download_timeout"`
	LinkExpirationMinutes int    `toml:"link_expiration_minutes"`
}

// Storage contains configuration for the recording archive bucket.
type Storage struct {
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	AccessKeyID          string `toml:"access_key_id"`
	SecretAccessKey      string `toml:"secret_access_key"`
	KeyPrefix            string `toml:"key_prefix"`
	PresignExpireMinutes int    `toml:"presign_expire_minutes"`
}

// Docs contains configuration for the document service that receives
// generated transcripts.
type Docs struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications contains configuration for chat webhook notifications.
type Notifications struct {
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Failure        bool   `toml:"failure"`
	Recovery       bool   `toml:"recovery"`
}

// Pipeline contains retry policy for pipeline steps.
type Pipeline struct {
	StepMaxAttempts       int `toml:"step_max_attempts"`
	RetryBaseDelaySeconds int `toml:"retry_base_delay_seconds"`
}

// Reconcile contains the poller cadence and stuck-state thresholds.
// The thresholds are operational tuning, not structure, so they live here
// rather than as constants.
type Reconcile struct {
	PollIntervalSeconds   int `toml:"poll_interval_seconds"`
	BotJoinedRetryMinutes int `toml:"bot_joined_retry_minutes"`
	BotJoinedCeilingHours int `toml:"bot_joined_ceiling_hours"`
	RecordingRetryMinutes int `toml:"recording_retry_minutes"`
	ShutdownGraceSeconds  int `toml:"shutdown_grace_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scribe.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Provider      Provider      `toml:"provider"`
	Storage       Storage       `toml:"storage"`
	Docs          Docs          `toml:"docs"`
	Notifications Notifications `toml:"notifications"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
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
		if _, err = os.Stat(expanded); err != nil {
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
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
