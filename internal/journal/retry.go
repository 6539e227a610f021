package journal

import (
	"context"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for journal writes
type RetryConfig struct {
	MaxRetries    int
	BackoffDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BackoffDelays: []time.Duration{time.Second, 3 * time.Second, 9 * time.Second},
	}
}

// IsRetryable determines if an error should trigger a retry. Only transient
// connectivity classes retry; constraint and data errors fail immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"deadlock",
		"lock timeout",
		"serialization failure",
		"too many clients",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// WriteWithRetry runs a journal write with bounded backoff. Non-retryable
// errors and exhausted retries return the last error unchanged.
func WriteWithRetry(ctx context.Context, cfg RetryConfig, write func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BackoffDelays[len(cfg.BackoffDelays)-1]
			if attempt-1 < len(cfg.BackoffDelays) {
				delay = cfg.BackoffDelays[attempt-1]
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = write(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
