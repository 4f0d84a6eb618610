package services_test

import (
	"errors"
	"testing"

	"scribe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "gateway", "get session", "request failed", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected wrapped error to match ErrTransient, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped error to retain cause, got %v", err)
	}
	want := "transient failure: gateway: get session: request failed: connection reset"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "gateway", "download", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("nil marker should default to ErrTransient, got %v", err)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"not found", services.Wrap(services.ErrNotFound, "gateway", "download", "source expired", nil), true},
		{"validation", services.Wrap(services.ErrValidation, "pipeline", "fetch", "no locator", nil), true},
		{"transient", services.Wrap(services.ErrTransient, "gateway", "download", "503", nil), false},
		{"timeout", services.Wrap(services.ErrTimeout, "storage", "upload", "deadline", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsFatal(tc.err); got != tc.fatal {
				t.Fatalf("IsFatal(%v) = %v, want %v", tc.err, got, tc.fatal)
			}
		})
	}
}

func TestKind(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrNotFound, "", "", "", nil)); got != "not_found" {
		t.Fatalf("expected not_found, got %q", got)
	}
	if got := services.Kind(errors.New("boom")); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
