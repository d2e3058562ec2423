package chat

import (
	"context"
	"math"
	"time"
)

// Backoff is a bounded exponential reconnect policy: the n-th consecutive
// failure waits Initial*2^(n-1), capped at Max, and after MaxAttempts
// failures the connection gives up.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before the next attempt after the given number of
// consecutive failures, or false once the attempts are exhausted.
func (b Backoff) Delay(failures int) (time.Duration, bool) {
	if failures < 1 {
		failures = 1
	}
	if b.MaxAttempts > 0 && failures > b.MaxAttempts {
		return 0, false
	}

	d := b.Initial
	for i := 1; i < failures && d <= math.MaxInt64/2; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max, true
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	return d, true
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
