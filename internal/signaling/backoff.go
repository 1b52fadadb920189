package signaling

import "time"

// backoff yields exponentially growing reconnect delays: base, 2*base, ...
// capped at max. Reset starts over after a successful connection.
type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// Next returns the delay before the next attempt.
func (b *backoff) Next() time.Duration {
	if b.cur == 0 {
		b.cur = b.base
	} else {
		b.cur *= 2
	}
	if b.cur > b.max {
		b.cur = b.max
	}
	return b.cur
}

func (b *backoff) Reset() { b.cur = 0 }
