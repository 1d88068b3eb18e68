package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test", 3, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected errBoom, got %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state, got %d", cb.GetState())
	}

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	var open *ErrOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("operation must not run while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test", 1, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("expected half-open trial to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after successful trial, got %d", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test", 1, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	now = now.Add(2 * time.Minute)
	_ = cb.Call(ctx, fail)

	if cb.GetState() != StateOpen {
		t.Errorf("expected open after failed trial, got %d", cb.GetState())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New("test", 2, time.Minute)
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, ok)
	_ = cb.Call(ctx, fail)

	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, failures should reset on success")
	}
}

func TestCircuitBreaker_FailureFilter(t *testing.T) {
	errIgnored := errors.New("not found")
	ignored := func(context.Context) error { return errIgnored }
	onlyBoom := func(err error) bool { return errors.Is(err, errBoom) }

	tests := []struct {
		name  string
		calls []func(context.Context) error
		want  State
	}{
		{"ignored errors never trip", []func(context.Context) error{ignored, ignored, ignored, ignored, ignored}, StateClosed},
		{"ignored errors do not add to the count", []func(context.Context) error{fail, ignored, ignored, fail}, StateClosed},
		{"counted errors still trip", []func(context.Context) error{fail, ignored, fail, fail}, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := New("test", 3, time.Minute).WithFailureFilter(onlyBoom)
			ctx := context.Background()
			for _, call := range tt.calls {
				_ = cb.Call(ctx, call)
			}
			if got := cb.GetState(); got != tt.want {
				t.Errorf("expected state %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCircuitBreaker_FilteredErrorReturnsHalfOpenSlot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	errIgnored := errors.New("not found")
	cb := New("test", 1, time.Minute).
		WithClock(func() time.Time { return now }).
		WithFailureFilter(func(err error) bool { return errors.Is(err, errBoom) })
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	now = now.Add(2 * time.Minute)

	for i := 0; i < 5; i++ {
		if err := cb.Call(ctx, func(context.Context) error { return errIgnored }); !errors.Is(err, errIgnored) {
			t.Fatalf("call %d: expected the operation to run, got %v", i, err)
		}
	}
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("expected half-open trial to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got %d", cb.GetState())
	}
}
