package pipeline

import (
	"context"
	"time"

	"github.com/gatewise-data/gatewise/internal/timeutil"
)

// Store and webhook I/O retry policy. The statistical computation itself is
// pure and re-runnable, so only collaborator calls are retried.
const (
	retryMaxAttempts = 3
	retryBaseDelay   = 100 * time.Millisecond
)

// withRetry runs op up to retryMaxAttempts times, doubling the delay between
// attempts. It returns the last error when every attempt fails, or the
// context error if the caller has cancelled before a retry.
func withRetry(ctx context.Context, clock timeutil.Clock, op func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		if err = op(); err == nil {
			return nil
		}
		if attempt == retryMaxAttempts {
			break
		}
		clock.Sleep(delay)
		delay *= 2
	}
	return err
}
