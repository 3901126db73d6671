package resilience

import (
	"time"
)

// FromRetryConfig builds a RetryConfig from the flat values the catalog
// config file carries (retry.max_attempts and friends). Non-positive
// values keep the shipped defaults; pass a negative jitterFraction to
// keep the default jitter.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from the breaker section
// of the catalog config (breaker.failure_threshold, breaker.cooldown_secs).
// Non-positive values keep the shipped defaults.
func FromCircuitConfig(failureThreshold, cooldownSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.ResetTimeout = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
