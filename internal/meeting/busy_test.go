package meeting

import (
	"context"
	"errors"
	"testing"
)

type codedError struct{ code int }

func (e codedError) Error() string { return "sqlite error" }
func (e codedError) Code() int     { return e.code }

func TestIsSQLiteBusy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy code", codedError{code: sqliteBusyCode}, true},
		{"other code", codedError{code: 1}, false},
		{"busy message", errors.New("claim meeting: database is locked (5) (SQLITE_BUSY)"), true},
		{"unrelated", errors.New("no such table: meetings"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSQLiteBusy(tc.err); got != tc.want {
				t.Fatalf("isSQLiteBusy(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	busy := codedError{code: sqliteBusyCode}
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("constraint failed")
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryOnBusyGivesUpEventually(t *testing.T) {
	busy := codedError{code: sqliteBusyCode}
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return busy
	})
	var coded codedError
	if !errors.As(err, &coded) {
		t.Fatalf("err = %v", err)
	}
	if calls != busyRetryAttempts {
		t.Fatalf("calls = %d, want %d", calls, busyRetryAttempts)
	}
}
