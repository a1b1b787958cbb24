package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := cb.Call(failing); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}

	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", got)
	}
	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 10; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("expected closed, got %s", got)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	failing := func() error { return errors.New("boom") }

	cb.Call(failing)
	cb.Call(failing)
	cb.Call(func() error { return nil })
	cb.Call(failing)
	cb.Call(failing)

	if got := cb.GetState(); got != StateClosed {
		t.Errorf("expected closed after interleaved success, got %s", got)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.Call(func() error { return errors.New("boom") })
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("expected open, got %s", got)
	}

	time.Sleep(20 * time.Millisecond)

	// Enough successful probes close the circuit again.
	for i := 0; i < halfOpenProbes; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("expected closed after successful probes, got %s", got)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.Call(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return errors.New("still down") })
	if got := cb.GetState(); got != StateOpen {
		t.Errorf("expected reopened after failed probe, got %s", got)
	}
}

func TestCircuitBreakerRecordResult(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if got := cb.GetState(); got != StateOpen {
		t.Errorf("expected open from recorded failures, got %s", got)
	}
}
