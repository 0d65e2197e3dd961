// Package netutil holds networking helpers shared by the blocklist
// fetcher, route-server client, and bulk-whois client: retry-with-backoff
// grounded on the teacher's pkg/util/workers pool, and raw-socket tuning
// grounded on the goleveldb-adjacent use of golang.org/x/sys in the teacher
// tree.
package netutil

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures exponential backoff around a single dial/request
// attempt. This is distinct from the orchestrator's "transient I/O failure:
// logged, not retried within the cycle" rule in §7 — that rule governs
// whether a whole C5/C6/C8 phase is retried later in the same cycle; this
// is the much smaller in-attempt retry the teacher's HTTP clients use
// around one request so a single dropped packet doesn't fail the attempt.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig mirrors the teacher's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn with exponential backoff between attempts, stopping early
// on ctx cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
