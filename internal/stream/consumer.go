// Package stream consumes the chain's vote stream and feeds watched votes to
// the dispatch pipeline. It reconnects forever with exponential backoff until
// its context is cancelled.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/trailvote/internal/adapters/chain"
	"github.com/okian/trailvote/internal/domain/dedupe"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/okian/trailvote/pkg/metrics"
)

const defaultTransientDelay = 200 * time.Millisecond

// Subscriber opens vote subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, mode model.Mode, from uint32) (chain.Subscription, error)
}

// ContentFetcher fetches the content a vote targets.
type ContentFetcher interface {
	GetContent(ctx context.Context, author, permlink string) (model.Content, error)
}

// Pipeline decides what to do with a watched vote. Route must not block on
// broadcasting.
type Pipeline interface {
	Watches(account string) bool
	Route(ctx context.Context, now time.Time, ev model.VoteEvent, c model.Content)
}

// State is the consumer's lifecycle state.
type State string

// Consumer states.
const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateBackoff    State = "backoff"
	StateStopped    State = "stopped"
)

// Status is a point-in-time view of the consumer.
type Status struct {
	State       State         `json:"state"`
	Mode        model.Mode    `json:"mode"`
	Backoff     time.Duration `json:"backoff_ns"`
	LastBlock   uint32        `json:"last_block"`
	LastEventAt time.Time     `json:"last_event_at,omitempty"`
	Events      uint64        `json:"events"`
	Watched     uint64        `json:"watched"`
	Duplicates  uint64        `json:"duplicates"`
	Errors      uint64        `json:"errors"`
	Reconnects  uint64        `json:"reconnects"`
	LastError   string        `json:"last_error,omitempty"`
}

// Consumer runs the connect, stream, backoff loop.
type Consumer struct {
	subscriber Subscriber
	fetcher    ContentFetcher
	pipeline   Pipeline
	deduper    dedupe.Deduper

	mode           model.Mode
	backoff        *Backoff
	transientDelay time.Duration
	resumeFrom     uint32
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	// st is only touched by the Run goroutine; snapshots are published to
	// status for readers.
	st     Status
	status atomic.Pointer[Status]

	logger logger.Logger
}

// NewConsumer creates a consumer with configuration options.
func NewConsumer(sub Subscriber, fetcher ContentFetcher, pipeline Pipeline, opts ...Option) *Consumer {
	c := &Consumer{
		subscriber:     sub,
		fetcher:        fetcher,
		pipeline:       pipeline,
		mode:           model.ModeIrreversible,
		backoff:        NewBackoff(),
		transientDelay: defaultTransientDelay,
		now:            func() time.Time { return time.Now().UTC() },
		sleep:          sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deduper == nil {
		c.deduper = dedupe.NewInMemoryDeduper()
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("stream")
	}

	c.st = Status{State: StateStopped, Mode: c.mode, Backoff: c.backoff.Current()}
	c.publish()

	return c
}

// Status returns the latest published snapshot. Safe for concurrent use.
func (c *Consumer) Status() Status {
	return *c.status.Load()
}

// Run consumes until ctx is cancelled. Stream errors never end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.setState(StateStopped)

	first := true
	for ctx.Err() == nil {
		if !first {
			c.st.Reconnects++
			metrics.RecordReconnect()
		}
		first = false

		c.setState(StateConnecting)
		err := c.consume(ctx)
		if ctx.Err() != nil {
			break
		}
		c.retryAfter(ctx, err)
	}

	c.logger.Info(context.Background(), "vote stream stopped", logger.Uint32("last_block", c.st.LastBlock))
	return nil
}

// consume runs one subscription until it fails.
func (c *Consumer) consume(ctx context.Context) error {
	sub, err := c.subscriber.Subscribe(ctx, c.mode, c.resumeFrom)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	c.setState(StateStreaming)
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, ev); err != nil {
			return err
		}
	}
}

// handle processes one delivered event. An error tears the subscription down.
func (c *Consumer) handle(ctx context.Context, ev model.VoteEvent) error { //nolint:gocritic // hugeParam
	metrics.RecordEventReceived()
	c.st.Events++
	c.st.LastBlock = ev.Block
	c.st.LastEventAt = ev.Timestamp
	c.resumeFrom = ev.Block
	metrics.UpdateLastBlock(ev.Block)

	id := ev.ID()
	if c.deduper.SeenAndRecord(ctx, id) {
		metrics.RecordEventDuplicate()
		c.st.Duplicates++
		c.publish()
		return nil
	}

	if c.pipeline.Watches(ev.Voter) {
		metrics.RecordEventWatched()
		c.st.Watched++

		start := time.Now()
		content, err := c.fetcher.GetContent(ctx, ev.Author, ev.Permlink)
		metrics.RecordContentLatency(float64(time.Since(start).Milliseconds()))

		switch {
		case errors.Is(err, chain.ErrContentNotFound):
			c.logger.Warn(ctx, "voted content not found, skipping",
				logger.String("voter", ev.Voter),
				logger.String("content", ev.Slug()),
			)
		case err != nil:
			// Forget the event so the resumed subscription delivers it again.
			c.deduper.Unrecord(ctx, id)
			return fmt.Errorf("%w for %s: %w", errContentFetch, ev.Slug(), err)
		default:
			c.pipeline.Route(ctx, c.now(), ev, content)
		}
	}

	c.backoff.Reset()
	metrics.UpdateBackoff(c.backoff.Current().Seconds())
	c.st.Backoff = c.backoff.Current()
	c.publish()
	return nil
}

// retryAfter waits before the next subscription. A block the node has not
// applied yet is expected when following the head and is retried quickly
// without growing the backoff.
func (c *Consumer) retryAfter(ctx context.Context, err error) {
	if c.mode == model.ModeHead && errors.Is(err, chain.ErrBlockNotAvailable) {
		c.logger.Debug(ctx, "block not yet available, retrying", logger.Duration("delay", c.transientDelay))
		_ = c.sleep(ctx, c.transientDelay)
		return
	}

	delay := c.backoff.Next()
	c.st.Errors++
	c.st.LastError = err.Error()
	c.st.Backoff = c.backoff.Current()
	c.setState(StateBackoff)

	metrics.RecordStreamError(errorKind(err))
	metrics.UpdateBackoff(c.backoff.Current().Seconds())

	c.logger.Error(ctx, "vote stream failed, reconnecting",
		logger.Error(err),
		logger.Duration("backoff", delay),
		logger.Uint32("resume_block", c.resumeFrom),
	)
	_ = c.sleep(ctx, delay)
}

func errorKind(err error) string {
	var rpcErr *chain.RPCError
	switch {
	case errors.Is(err, chain.ErrBlockNotAvailable):
		return "block_not_available"
	case errors.Is(err, errContentFetch):
		return "content"
	case errors.As(err, &rpcErr):
		return "rpc"
	default:
		return "transport"
	}
}

func (c *Consumer) setState(s State) {
	c.st.State = s
	c.publish()
}

func (c *Consumer) publish() {
	snapshot := c.st
	c.status.Store(&snapshot)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
