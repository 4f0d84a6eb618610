package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"scribe/internal/botgateway"
	"scribe/internal/config"
	"scribe/internal/notifications"
	"scribe/internal/reconcile"
	"scribe/internal/testsupport"
)

type idleDispatcher struct{}

func (idleDispatcher) Dispatch(context.Context, int64, string, string) {}
func (idleDispatcher) Wait()                                          {}

type idleQuerier struct{}

func (idleQuerier) GetSessionData(context.Context, string) (*botgateway.SessionData, error) {
	return &botgateway.SessionData{}, nil
}

type idleNotifier struct{}

func (idleNotifier) Publish(context.Context, notifications.Event, notifications.Payload) (string, error) {
	return "", nil
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	poller := reconcile.New(cfg, store, idleQuerier{}, idleDispatcher{}, idleNotifier{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	d, err := New(cfg, store, poller, handler, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDaemonStartServesAndStops(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + d.Addr() + "/")
	if err != nil {
		t.Fatalf("request daemon: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not finish")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg)
	second := newTestDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
	d.Stop()

	// The lock must be free again for a fresh start.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	d.Stop()
}
