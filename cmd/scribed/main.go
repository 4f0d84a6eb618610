// Command scribed runs the scribe daemon: the webhook listener, the recording
// pipeline, and the reconciliation poller.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/logging"
)

func main() {
	var configPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(configPath, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "no config file at %s, using defaults\n", resolvedPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("scribed-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return daemon.Run(ctx, cfg, logger)
}
