package jobs

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffPolicy decides how long a failed job waits before its next attempt.
// attempts is the number of attempts already made, starting at 1.
type BackoffPolicy interface {
	Delay(attempts int) time.Duration
}

// FixedBackoff waits the same amount after every failure.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration {
	if b.Interval <= 0 {
		return DefaultBackoffSeconds * time.Second
	}
	return b.Interval
}

// ExponentialBackoff doubles Base per attempt up to Max (one hour when
// unset). With Jitter the delay is drawn uniformly from [delay/2, delay].
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

func (b ExponentialBackoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = time.Hour
	}

	d := min(base, ceiling)
	for i := 1; i < attempts && d < ceiling; i++ {
		d = min(d*2, ceiling)
	}

	if b.Jitter && d > 1 {
		half := d / 2
		d = half + rand.N(d-half+1)
	}
	return d
}

// Seconds converts a delay for FailInput, rounding up to at least one second.
func Seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// NewBackoffPolicy maps the queue.backoff setting to a policy.
func NewBackoffPolicy(kind string, base, maxDelay time.Duration, jitter bool) (BackoffPolicy, error) {
	switch kind {
	case "", "fixed":
		return FixedBackoff{Interval: base}, nil
	case "exponential":
		return ExponentialBackoff{Base: base, Max: maxDelay, Jitter: jitter}, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", kind)
	}
}
