package replication

import "time"

// Retryer decides whether a failed attempt is retried and after how long.
// attempt is the 1-based number of the attempt that just failed.
type Retryer interface {
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// LinearBackoff waits attempt × BaseDelay between attempts and gives up after
// MaxAttempts attempts in total.
type LinearBackoff struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

func NewLinearBackoff(attempts int, base time.Duration) *LinearBackoff {
	if attempts < 1 {
		attempts = 1
	}
	return &LinearBackoff{BaseDelay: base, MaxAttempts: attempts}
}

func (b *LinearBackoff) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if attempt >= b.MaxAttempts {
		return 0, false
	}
	return time.Duration(attempt) * b.BaseDelay, true
}
