package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"scribe/internal/botgateway"
	"scribe/internal/config"
	"scribe/internal/docstore"
	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/reconcile"
	"scribe/internal/storage"
	"scribe/internal/webhook"
)

// Run wires every component over the given config and serves until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "scribed.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := meeting.Open(cfg)
	if err != nil {
		logger.Error("open meeting store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	gateway := botgateway.NewClient(cfg.Provider)
	archive, err := storage.NewArchive(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("init recording archive: %w", err)
	}
	docs := docstore.NewClient(cfg.Docs)

	logConfigSnapshot(logger, cfg)

	proc := pipeline.New(cfg, store, gateway, archive, docs, notifier, logger)
	poller := reconcile.New(cfg, store, gateway, proc, notifier, logger)
	server := webhook.New(cfg, store, proc, notifier, logger)

	d, err := New(cfg, store, poller, server.Handler(), logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("scribe daemon shutting down")
		return nil
	case err := <-d.ServeErr():
		if err != nil {
			logger.Error("http server failed", logging.Error(err))
		}
		return err
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logConfigSnapshot records which external integrations are live, without
// leaking any secret material.
func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("bind", cfg.Server.Bind),
		logging.Bool("webhook_token_set", strings.TrimSpace(cfg.Server.WebhookToken) != ""),
		logging.String("provider_base_url", cfg.Provider.BaseURL),
		logging.Bool("provider_key_present", strings.TrimSpace(cfg.Provider.APIKey) != ""),
		logging.String("storage_bucket", cfg.Storage.Bucket),
		logging.String("storage_region", cfg.Storage.Region),
		logging.String("docs_base_url", cfg.Docs.BaseURL),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.WebhookURL) != ""),
		logging.Int("poll_interval_seconds", cfg.Reconcile.PollIntervalSeconds),
	)
}
