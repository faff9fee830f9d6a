package gmaps

import (
	"context"
	"time"

	"github.com/mazen160/go-random"
)

// pauses between page fetches for base plus up to 50% jitter, so the
// request cadence doesn't look mechanical to the frontend. returns
// early if ctx is cancelled.
func sleepJittered(ctx context.Context, base time.Duration) {
	extra, err := random.IntRange(0, int(base.Milliseconds()/2)+1)
	if err != nil {
		extra = 0
	}
	delay := base + time.Duration(extra)*time.Millisecond

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
