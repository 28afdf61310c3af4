package resilience

import (
	"testing"
	"time"
)

func TestNormalizeFillsZeroFields(t *testing.T) {
	cfg := Config{RetryMaxAttempts: -1, RetryInitialBackoff: time.Second}.normalize()
	def := DefaultConfig()

	if cfg.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below the initial backoff, got %s", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("breaker flag must be taken as given")
	}
	if cfg.BreakerMinRequests != def.BreakerMinRequests || cfg.BreakerHalfOpenMaxCalls != def.BreakerHalfOpenMaxCalls {
		t.Fatalf("expected breaker defaults, got %+v", cfg)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     350 * time.Millisecond,
		RetryMultiplier:     2,
	}.normalize()

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestTripAfterNeedsMinimumRequests(t *testing.T) {
	cfg := Config{BreakerMinRequests: 4, BreakerFailureRatio: 0.5}.normalize()
	if cfg.tripAfter(3, 3) {
		t.Fatalf("must not trip below the minimum request count")
	}
	if !cfg.tripAfter(4, 2) {
		t.Fatalf("expected trip at the failure ratio")
	}
	if cfg.tripAfter(4, 1) {
		t.Fatalf("must not trip below the failure ratio")
	}
}
