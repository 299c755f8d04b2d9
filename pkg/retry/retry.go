package retry

import (
	"context"
	"fmt"
	"time"
)

// Unlimited as MaxAttempts retries until fn succeeds, Retryable rejects the
// error, or ctx ends.
const Unlimited = -1

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls including the first attempt.
	// Zero means one attempt; Unlimited means no cap.
	MaxAttempts int
	// BaseDelay is the base for backoff. Wait = BaseDelay * attempt².
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(err error) bool
	// OnRetry is called after a failed attempt and before the next delay.
	// attempt is 1-indexed (1 = first attempt just failed).
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds or the attempt budget runs out.
//
// Wait schedule with BaseDelay=1s:
//
//	attempt 1 fails → wait 1s  (1² × 1s)
//	attempt 2 fails → wait 4s  (2² × 1s)
//	attempt 3 fails → wait 9s  (3² × 1s)
//
// Returns nil on first success, the first non-retryable error, or the last
// error after all attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	unlimited := cfg.MaxAttempts < 0

	var lastErr error
	for attempt := 1; unlimited || attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		// Last attempt: return without sleeping.
		if !unlimited && attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return lastErr
}

func backoff(cfg Config, attempt int) time.Duration {
	// Past this point attempt² overflows any sane MaxDelay anyway.
	if attempt > 1<<15 {
		attempt = 1 << 15
	}
	delay := cfg.BaseDelay * time.Duration(attempt*attempt)
	if cfg.MaxDelay > 0 && (delay > cfg.MaxDelay || delay < 0) {
		delay = cfg.MaxDelay
	}
	return delay
}
