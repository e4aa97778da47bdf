package feeder

import (
	"context"
	"time"
)

const (
	defaultWorkerCount = 8
	defaultBatchSize   = 64

	sleepDuration     = 5 * time.Second
	longSleepDuration = 1 * time.Minute
)

// sleepContext pauses for d, returning early with the context error if
// ctx is canceled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
