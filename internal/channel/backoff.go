package channel

import "time"

// Backoff yields exponentially growing retry delays between a base and a ceiling.
// Not safe for concurrent use; the Manager guards it.
type Backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

// NewBackoff 초기 지연 base, 최대 지연 max
func NewBackoff(base, max time.Duration) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, next: base}
}

// Next returns the delay to wait now and doubles the following one, capped at max.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(d*2, b.max)
	return d
}

// Peek returns the delay Next would return, without advancing.
func (b *Backoff) Peek() time.Duration {
	return b.next
}

// Reset goes back to the base delay.
func (b *Backoff) Reset() {
	b.next = b.base
}
