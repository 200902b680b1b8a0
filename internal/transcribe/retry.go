package transcribe

import (
	"context"
	"time"
)

// RetryPolicy is a bounded fixed-delay retry loop:
//
//	Attempt(n) -> Success | RetryableFailure -> Attempt(n+1) | TerminalFailure
//
// Attempt count and delay are parameters so the machine is testable apart
// from the transport.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn until it succeeds, returns a terminal error, or attempts are
// exhausted. The last error is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryableError(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
