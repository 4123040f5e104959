package stream

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Reconnect delays: start at 1ms, double per consecutive failure, cap at 12.8s.
const (
	initialBackoff    = time.Millisecond
	maxBackoff        = 12800 * time.Millisecond
	backoffMultiplier = 2
)

// Backoff is the consumer's reconnect delay. It is owned by a single
// goroutine and is not safe for concurrent use.
type Backoff struct {
	eb      *backoff.ExponentialBackOff
	current time.Duration
}

// NewBackoff returns a backoff at its initial delay.
func NewBackoff() *Backoff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     initialBackoff,
		RandomizationFactor: 0,
		Multiplier:          backoffMultiplier,
		MaxInterval:         maxBackoff,
	}
	eb.Reset()
	return &Backoff{eb: eb, current: initialBackoff}
}

// Current is the delay the next failure will wait.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	d := b.eb.NextBackOff()
	if float64(d) >= float64(maxBackoff)/backoffMultiplier {
		b.current = maxBackoff
	} else {
		b.current = d * backoffMultiplier
	}
	return d
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.eb.Reset()
	b.current = initialBackoff
}
