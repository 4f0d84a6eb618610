// Package daemon ties the HTTP listener, the recording pipeline, and the
// reconciliation poller into a single lifecycle with flock-based locking to
// prevent multiple instances from sharing one meeting database.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/reconcile"
)

// Daemon owns the long-running services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *meeting.Store
	poller  *reconcile.Poller
	handler http.Handler

	lockPath string
	lock     *flock.Flock

	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon over already-wired components.
func New(cfg *config.Config, store *meeting.Store, poller *reconcile.Poller, handler http.Handler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || poller == nil || handler == nil {
		return nil, errors.New("daemon requires config, store, poller, and handler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "scribed.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		poller:   poller,
		handler:  handler,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, binds the listener, and launches the
// poller. It returns once the daemon is serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("bind %s: %w", d.cfg.Server.Bind, err)
	}
	d.listener = listener
	d.serveErr = make(chan error, 1)
	d.httpServer = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		err := d.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.serveErr <- err
		}
		close(d.serveErr)
	}()

	d.poller.Start(runCtx)
	d.running.Store(true)
	d.logger.Info("scribe daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("bind", d.Addr()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Addr returns the bound listener address, useful when Bind requested port 0.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return d.cfg.Server.Bind
	}
	return d.listener.Addr().String()
}

// ServeErr reports a listener failure after Start, if any.
func (d *Daemon) ServeErr() <-chan error {
	return d.serveErr
}

// Stop shuts the daemon down: the listener stops accepting, the poller halts,
// and in-flight pipeline runs get a bounded grace period to finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	grace := time.Duration(d.cfg.Reconcile.ShutdownGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", logging.Error(err))
	}

	// Poller.Stop waits for dispatched pipeline runs. Bound that wait so a
	// wedged provider download cannot hold shutdown hostage.
	stopped := make(chan struct{})
	go func() {
		d.poller.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grace):
		d.logger.Warn("shutdown grace expired with pipeline work still running",
			logging.Duration("grace", grace),
		)
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
