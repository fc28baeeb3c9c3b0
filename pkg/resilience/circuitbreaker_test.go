package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	if err := cb.Execute(context.Background(), failing); err == nil {
		t.Fatal("expected first failure to propagate")
	}
	if err := cb.Execute(context.Background(), failing); err == nil {
		t.Fatal("expected second failure to propagate")
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	if err := cb.Execute(context.Background(), failing); !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Millisecond})
	failing := func(ctx context.Context) error { return errors.New("boom") }
	succeeding := func(ctx context.Context) error { return nil }

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	time.Sleep(2 * time.Millisecond)

	if err := cb.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want %v after a successful half-open trial", cb.State(), StateClosed)
	}
}
