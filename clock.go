package lime2node

import (
	"context"
	"time"
)

// A Clock drives the ACK polling loop.
// Elapsed time must be computed from Now, which carries a monotonic reading.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WallClock returns the system clock.
func WallClock() Clock {
	return wallClock{}
}
