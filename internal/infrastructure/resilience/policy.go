package resilience

import (
	"cmp"
	"time"
)

// Config tunes retries and breakers for outbound provider calls. Zero fields
// fall back to DefaultConfig; BreakerEnabled is taken as given.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits the model and embedding providers: three quick attempts
// and a breaker that opens when half of at least five calls fail.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         400 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// SingleAttempt keeps the breaker but disables retries, for calls whose
// caller already budgets a short timeout (the exchange-rate lookup).
func (c Config) SingleAttempt() Config {
	c.RetryMaxAttempts = 1
	return c
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	c.RetryMaxAttempts = cmp.Or(max(c.RetryMaxAttempts, 0), def.RetryMaxAttempts)
	c.RetryInitialBackoff = cmp.Or(max(c.RetryInitialBackoff, 0), def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(cmp.Or(max(c.RetryMaxBackoff, 0), def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}

	c.BreakerMinRequests = cmp.Or(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = cmp.Or(max(c.BreakerOpenTimeout, 0), def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = cmp.Or(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}

// backoff returns the wait before retry number attempt (1-based), growing
// geometrically from RetryInitialBackoff and capped at RetryMaxBackoff.
func (c Config) backoff(attempt int) time.Duration {
	wait := float64(c.RetryInitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= c.RetryMultiplier
		if wait >= float64(c.RetryMaxBackoff) {
			return c.RetryMaxBackoff
		}
	}
	return min(time.Duration(wait), c.RetryMaxBackoff)
}

// tripAfter is the breaker's ReadyToTrip predicate for this policy.
func (c Config) tripAfter(requests, failures uint32) bool {
	if requests < c.BreakerMinRequests {
		return false
	}
	return float64(failures)/float64(requests) >= c.BreakerFailureRatio
}
