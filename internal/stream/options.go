package stream

import (
	"time"

	"github.com/okian/trailvote/internal/domain/dedupe"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMode sets the finality mode. It is fixed for the consumer's lifetime.
func WithMode(m model.Mode) Option {
	return func(c *Consumer) {
		if m != "" {
			c.mode = m
		}
	}
}

// WithDeduper replaces the redelivery deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Consumer) {
		if d != nil {
			c.deduper = d
		}
	}
}

// WithClock sets the time source passed to the pipeline.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStartBlock makes the first subscription start at block instead of
// the tip.
func WithStartBlock(block uint32) Option {
	return func(c *Consumer) {
		c.resumeFrom = block
	}
}

// WithTransientDelay sets the wait after a block-not-yet-available error in
// head mode.
func WithTransientDelay(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.transientDelay = d
		}
	}
}
