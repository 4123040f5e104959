package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/trailvote/internal/adapters/chain"
	"github.com/okian/trailvote/internal/domain/model"
	logging "github.com/okian/trailvote/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type step struct {
	ev  model.VoteEvent
	err error
}

type fakeSubscriber struct {
	mu      sync.Mutex
	scripts [][]step
	froms   []uint32
	idle    chan struct{}
	once    sync.Once
}

func newFakeSubscriber(scripts ...[]step) *fakeSubscriber {
	return &fakeSubscriber{scripts: scripts, idle: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ model.Mode, from uint32) (chain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.froms = append(f.froms, from)
	var steps []step
	if len(f.scripts) > 0 {
		steps, f.scripts = f.scripts[0], f.scripts[1:]
	}
	return &fakeSubscription{parent: f, steps: steps}, nil
}

func (f *fakeSubscriber) markIdle() {
	f.mu.Lock()
	done := len(f.scripts) == 0
	f.mu.Unlock()
	if done {
		f.once.Do(func() { close(f.idle) })
	}
}

func (f *fakeSubscriber) subscribedFrom() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.froms...)
}

type fakeSubscription struct {
	parent *fakeSubscriber
	steps  []step
}

func (s *fakeSubscription) Next(ctx context.Context) (model.VoteEvent, error) {
	if len(s.steps) == 0 {
		s.parent.markIdle()
		<-ctx.Done()
		return model.VoteEvent{}, ctx.Err()
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.ev, st.err
}

func (s *fakeSubscription) Close() error { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	fails map[string][]error // slug -> errors returned before succeeding
	calls []string
}

func (f *fakeFetcher) GetContent(_ context.Context, author, permlink string) (model.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slug := author + "/" + permlink
	f.calls = append(f.calls, slug)
	if errs := f.fails[slug]; len(errs) > 0 {
		f.fails[slug] = errs[1:]
		return model.Content{}, errs[0]
	}
	return model.Content{Author: author, Permlink: permlink}, nil
}

type fakePipeline struct {
	mu      sync.Mutex
	watched map[string]bool
	routed  []model.VoteEvent
	nows    []time.Time
}

func (p *fakePipeline) Watches(account string) bool { return p.watched[account] }

func (p *fakePipeline) Route(_ context.Context, now time.Time, ev model.VoteEvent, _ model.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routed = append(p.routed, ev)
	p.nows = append(p.nows, now)
}

func (p *fakePipeline) routedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.routed))
	for _, ev := range p.routed {
		ids = append(ids, ev.ID())
	}
	return ids
}

func vote(voter string, block uint32, trx int) model.VoteEvent {
	return model.VoteEvent{
		Voter:     voter,
		Author:    "bob",
		Permlink:  fmt.Sprintf("p%d-%d", block, trx),
		Weight:    8000,
		Timestamp: fixedNow.Add(-time.Minute),
		Block:     block,
		TrxNum:    trx,
	}
}

type harness struct {
	subs     *fakeSubscriber
	fetcher  *fakeFetcher
	pipeline *fakePipeline
	consumer *Consumer
	sleeps   []time.Duration
}

func newHarness(mode model.Mode, scripts ...[]step) *harness {
	_ = logging.Init()
	h := &harness{
		subs:     newFakeSubscriber(scripts...),
		fetcher:  &fakeFetcher{fails: map[string][]error{}},
		pipeline: &fakePipeline{watched: map[string]bool{"alice": true}},
	}
	h.consumer = NewConsumer(h.subs, h.fetcher, h.pipeline,
		WithMode(mode),
		WithClock(func() time.Time { return fixedNow }),
	)
	h.consumer.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

// run drives the consumer until every script has been consumed.
func (h *harness) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.consumer.Run(ctx) }()

	select {
	case <-h.subs.idle:
	case <-time.After(2 * time.Second):
		t.Error("consumer did not reach the end of its scripts")
	}
	cancel()
	So(<-done, ShouldBeNil)
}

func TestConsumerErrorRouting(t *testing.T) {
	missing := fmt.Errorf("block 7: %w", chain.ErrBlockNotAvailable)

	Convey("Given a head-mode consumer", t, func() {
		h := newHarness(model.ModeHead, []step{{err: missing}})
		h.run(t)

		Convey("Then a missing block is retried after 200ms without backoff growth", func() {
			So(h.sleeps, ShouldResemble, []time.Duration{200 * time.Millisecond})
			st := h.consumer.Status()
			So(st.Errors, ShouldEqual, 0)
			So(st.Backoff, ShouldEqual, time.Millisecond)
			So(st.Reconnects, ShouldEqual, 1)
			So(st.State, ShouldEqual, StateStopped)
		})
	})

	Convey("Given an irreversible-mode consumer", t, func() {
		h := newHarness(model.ModeIrreversible,
			[]step{{err: missing}},
			[]step{{err: missing}},
			[]step{{err: errors.New("connection reset")}},
		)
		h.run(t)

		Convey("Then every failure is a real error that grows the backoff", func() {
			So(h.sleeps, ShouldResemble, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond})
			st := h.consumer.Status()
			So(st.Errors, ShouldEqual, 3)
			So(st.Backoff, ShouldEqual, 8*time.Millisecond)
			So(st.LastError, ShouldEqual, "connection reset")
		})
	})

	Convey("Given failures separated by a delivered event", t, func() {
		fail := errors.New("node timeout")
		h := newHarness(model.ModeIrreversible,
			[]step{{err: fail}},
			[]step{{err: fail}},
			[]step{{ev: vote("alice", 10, 0)}, {err: fail}},
		)
		h.run(t)

		Convey("Then the event resets the backoff", func() {
			So(h.sleeps, ShouldResemble, []time.Duration{time.Millisecond, 2 * time.Millisecond, time.Millisecond})
		})
	})
}

func TestConsumerEvents(t *testing.T) {
	Convey("Given a consumer watching alice", t, func() {
		Convey("When watched and unwatched votes arrive", func() {
			h := newHarness(model.ModeIrreversible,
				[]step{{ev: vote("carol", 10, 0)}, {ev: vote("alice", 10, 1)}},
			)
			h.run(t)

			Convey("Then only the watched vote is fetched and routed", func() {
				So(h.fetcher.calls, ShouldResemble, []string{"bob/p10-1"})
				So(h.pipeline.routedIDs(), ShouldResemble, []string{"10/1/0"})
				So(h.pipeline.nows[0], ShouldEqual, fixedNow)
				st := h.consumer.Status()
				So(st.Events, ShouldEqual, 2)
				So(st.Watched, ShouldEqual, 1)
				So(st.LastBlock, ShouldEqual, 10)
			})
		})

		Convey("When the stream resumes and redelivers a block", func() {
			e1, e2, e3 := vote("alice", 10, 0), vote("alice", 10, 1), vote("alice", 11, 0)
			h := newHarness(model.ModeIrreversible,
				[]step{{ev: e1}, {ev: e2}, {err: errors.New("eof")}},
				[]step{{ev: e1}, {ev: e2}, {ev: e3}},
			)
			h.run(t)

			Convey("Then it resumes at the last block and drops duplicates", func() {
				So(h.subs.subscribedFrom(), ShouldResemble, []uint32{0, 10})
				So(h.pipeline.routedIDs(), ShouldResemble, []string{"10/0/0", "10/1/0", "11/0/0"})
				So(h.consumer.Status().Duplicates, ShouldEqual, 2)
			})
		})

		Convey("When fetching content fails", func() {
			e1 := vote("alice", 10, 0)
			h := newHarness(model.ModeIrreversible,
				[]step{{ev: e1}},
				[]step{{ev: e1}},
			)
			h.fetcher.fails[e1.Slug()] = []error{errors.New("503")}
			h.run(t)

			Convey("Then the subscription is torn down and the event retried", func() {
				So(h.subs.subscribedFrom(), ShouldResemble, []uint32{0, 10})
				So(h.sleeps, ShouldResemble, []time.Duration{time.Millisecond})
				So(h.pipeline.routedIDs(), ShouldResemble, []string{"10/0/0"})
				So(h.consumer.Status().LastError, ShouldContainSubstring, "content fetch failed")
			})
		})

		Convey("When the voted content does not exist", func() {
			e1 := vote("alice", 10, 0)
			h := newHarness(model.ModeIrreversible, []step{{ev: e1}, {ev: vote("alice", 10, 1)}})
			h.fetcher.fails[e1.Slug()] = []error{fmt.Errorf("x: %w", chain.ErrContentNotFound)}
			h.run(t)

			Convey("Then the event is skipped without reconnecting", func() {
				So(h.subs.subscribedFrom(), ShouldHaveLength, 1)
				So(h.pipeline.routedIDs(), ShouldResemble, []string{"10/1/0"})
				So(h.consumer.Status().Errors, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a consumer with a start block", t, func() {
		h := newHarness(model.ModeIrreversible)
		h.consumer.resumeFrom = 500
		h.run(t)

		So(h.subs.subscribedFrom(), ShouldResemble, []uint32{500})
	})
}

func TestErrorKind(t *testing.T) {
	Convey("Given stream errors", t, func() {
		So(errorKind(fmt.Errorf("x: %w", chain.ErrBlockNotAvailable)), ShouldEqual, "block_not_available")
		So(errorKind(fmt.Errorf("%w for a/b: %w", errContentFetch, errors.New("boom"))), ShouldEqual, "content")
		So(errorKind(fmt.Errorf("call: %w", &chain.RPCError{Code: -1, Message: "bad"})), ShouldEqual, "rpc")
		So(errorKind(errors.New("dial tcp")), ShouldEqual, "transport")
	})
}
