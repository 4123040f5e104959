package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

// Subscription delivers vote events in chain order. It is not restartable:
// after Next returns an error the subscription is unusable and a new one
// must be created.
type Subscription interface {
	Next(ctx context.Context) (model.VoteEvent, error)
	Close() error
}

// Subscribe starts a block-polling subscription. Blocks are read up to the
// head block in ModeHead and up to the last irreversible block otherwise.
// Reading starts at from, or at the current tip when from is zero.
func (c *Client) Subscribe(ctx context.Context, mode model.Mode, from uint32) (Subscription, error) {
	props, err := c.Properties(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &blockSubscription{
		client: c,
		mode:   mode,
		tip:    props.Tip(mode),
		next:   from,
	}
	if s.next == 0 {
		s.next = s.tip
	}

	c.logger.Info(ctx, "subscribed to vote stream",
		logger.String("mode", string(mode)),
		logger.Uint32("from_block", s.next),
		logger.Uint32("tip", s.tip),
	)

	return s, nil
}

type blockSubscription struct {
	client  *Client
	mode    model.Mode
	tip     uint32
	next    uint32
	pending []model.VoteEvent
	err     error
}

// Next blocks until the next vote event is available.
func (s *blockSubscription) Next(ctx context.Context) (model.VoteEvent, error) {
	for {
		if s.err != nil {
			return model.VoteEvent{}, s.err
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}

		if s.next > s.tip {
			if err := s.refreshTip(ctx); err != nil {
				return model.VoteEvent{}, s.fail(err)
			}
			continue
		}

		events, err := s.client.OpsInBlock(ctx, s.next)
		if err != nil {
			return model.VoteEvent{}, s.fail(err)
		}
		s.pending = events
		s.next++
	}
}

// refreshTip waits one poll interval when caught up, then asks for the tip.
func (s *blockSubscription) refreshTip(ctx context.Context) error {
	props, err := s.client.Properties(ctx)
	if err != nil {
		return err
	}
	if tip := props.Tip(s.mode); tip >= s.next {
		s.tip = tip
		return nil
	}

	t := time.NewTimer(s.client.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *blockSubscription) fail(err error) error {
	s.err = err
	return err
}

// Close releases the subscription. Further calls to Next fail.
func (s *blockSubscription) Close() error {
	if s.err == nil {
		s.err = ErrSubscriptionClosed
	}
	s.pending = nil
	return nil
}
