package services

import (
	"testing"
	"time"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenReqs: 1})
	cb.now = func() time.Time { return now }

	if cb.State() != BreakerClosed {
		t.Fatalf("new breaker should be closed")
	}
	cb.OnFailure()
	if !cb.Allow() {
		t.Fatalf("one failure should not open the breaker")
	}
	cb.OnFailure()
	if cb.State() != BreakerOpen || cb.Allow() {
		t.Fatalf("breaker should open after reaching max failures")
	}

	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected probe after reset timeout")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state should be half-open, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("only one probe allowed in half-open")
	}

	cb.OnFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("failed probe should reopen")
	}

	now = now.Add(time.Minute)
	cb.Allow()
	cb.OnSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after successful probe")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state    BreakerState
		expected string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})
	stats := cb.Stats()
	if stats["max_failures"] != 3 {
		t.Fatalf("expected default max failures, got %v", stats["max_failures"])
	}
}
