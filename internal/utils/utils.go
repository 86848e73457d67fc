package utils

import (
	"context"
	"time"
)

// WaitFor sleeps for d unless the context is cancelled first. It backs the
// retry delays between model calls.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
