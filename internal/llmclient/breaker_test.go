package llmclient

import (
	"testing"
	"time"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := newCircuitBreaker(3, 2, time.Minute)

	if state := cb.State(); state != "closed" {
		t.Errorf("State() = %q, want closed", state)
	}
	if !cb.Allow() {
		t.Error("Allow() = false, want true when closed")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, 2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	if state := cb.State(); state != "closed" {
		t.Errorf("State() after 2 failures = %q, want closed", state)
	}

	cb.RecordFailure()
	if state := cb.State(); state != "open" {
		t.Errorf("State() after 3 failures = %q, want open", state)
	}
	if cb.Allow() {
		t.Error("Allow() = true, want false when open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newCircuitBreaker(3, 2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if state := cb.State(); state != "closed" {
		t.Errorf("State() = %q, want closed (success resets the count)", state)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := newCircuitBreaker(1, 1, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("Allow() = true immediately after opening, want false")
	}

	time.Sleep(15 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Allow() = false after timeout, want true (half-open probe)")
	}
	if state := cb.State(); state != "half-open" {
		t.Errorf("State() = %q, want half-open", state)
	}
}

func TestCircuitBreaker_HalfOpenClosesOnSuccesses(t *testing.T) {
	cb := newCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	cb.Allow()

	cb.RecordSuccess()
	if state := cb.State(); state != "half-open" {
		t.Errorf("State() after 1 success = %q, want half-open", state)
	}

	cb.RecordSuccess()
	if state := cb.State(); state != "closed" {
		t.Errorf("State() after 2 successes = %q, want closed", state)
	}
}

func TestCircuitBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	cb := newCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure()
	if state := cb.State(); state != "open" {
		t.Errorf("State() = %q, want open after half-open failure", state)
	}
	if cb.Allow() {
		t.Error("Allow() = true, want false after reopening")
	}
}
