package util

import (
	"context"
	"time"
)

// Retry runs fn up to maxAttempts times, doubling the delay between attempts
// starting from baseDelay. The first nil result wins; otherwise the error of
// the final attempt is returned. Cancelling ctx aborts the wait between
// attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// No backoff sleep once the final attempt has failed.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
