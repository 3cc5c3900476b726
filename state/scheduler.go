package state

import (
	"context"
	"time"
)

// RepeatTask runs fun every delay until ctx is done or fun fails. The first
// run happens immediately.
func RepeatTask(ctx context.Context, fun func() error, delay time.Duration) error {
	t := time.NewTicker(delay)
	defer t.Stop()
	for ctx.Err() == nil {
		if err := fun(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	return nil
}

// DelayedRepeatTask is RepeatTask without the immediate first run
func DelayedRepeatTask(ctx context.Context, fun func() error, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(delay):
	}
	return RepeatTask(ctx, fun, delay)
}
