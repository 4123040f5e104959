package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/trailvote/internal/adapters/mq/queue"
	worker "github.com/okian/trailvote/internal/adapters/mq/worker"
	model "github.com/okian/trailvote/internal/domain/model"
	logging "github.com/okian/trailvote/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	ballots chan model.Ballot
	once    sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{ballots: make(chan model.Ballot, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Ballot {
	return mq.ballots
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.ballots) })
	return nil
}

type mockBroadcaster struct {
	mu     sync.Mutex
	calls  []model.VoteOp
	errs   map[string]error // by voter name
	panics map[string]bool
	dryRun bool
	delay  time.Duration
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{errs: map[string]error{}, panics: map[string]bool{}}
}

func (mb *mockBroadcaster) Broadcast(ctx context.Context, voter model.Voter, op model.VoteOp) (model.Receipt, error) {
	if mb.delay > 0 {
		select {
		case <-time.After(mb.delay):
		case <-ctx.Done():
			return model.Receipt{}, ctx.Err()
		}
	}

	mb.mu.Lock()
	mb.calls = append(mb.calls, op)
	err := mb.errs[voter.Name]
	p := mb.panics[voter.Name]
	mb.mu.Unlock()

	if p {
		panic("boom")
	}
	if err != nil {
		return model.Receipt{}, err
	}
	return model.Receipt{TxID: "tx-" + voter.Name, DryRun: mb.dryRun}, nil
}

func (mb *mockBroadcaster) callCount() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.calls)
}

type mockRecorder struct {
	mu      sync.Mutex
	results []model.VoteResult
	err     error
}

func (mr *mockRecorder) Record(ctx context.Context, res model.VoteResult) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.results = append(mr.results, res)
	return mr.err
}

func (mr *mockRecorder) byVoter() map[string]model.VoteResult {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := make(map[string]model.VoteResult, len(mr.results))
	for _, r := range mr.results {
		out[r.Voter] = r
	}
	return out
}

func (mr *mockRecorder) count() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return len(mr.results)
}

func ballotFor(voter string, weight int) model.Ballot {
	return model.Ballot{
		ID:       "ballot-" + voter,
		Trail:    "alice",
		Voter:    model.Voter{Name: voter, Credential: "secret"},
		Author:   "bob",
		Permlink: "p1",
		Weight:   weight,
		Source:   "alice",
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		b := newMockBroadcaster()
		rec := &mockRecorder{}

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewInMemoryWorker(q, b)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, b, worker.WithName("test-worker"), worker.WithRecorders(rec))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And a ballot is broadcast successfully", func() {
				q.ballots <- ballotFor("v1", 4000)
				convey.So(waitFor(func() bool { return rec.count() == 1 }), convey.ShouldBeTrue)

				convey.Convey("Then the result is recorded as broadcast", func() {
					res := rec.byVoter()["v1"]
					convey.So(res.Status, convey.ShouldEqual, model.StatusBroadcast)
					convey.So(res.TxID, convey.ShouldEqual, "tx-v1")
					convey.So(res.Weight, convey.ShouldEqual, 4000)
					convey.So(res.At.IsZero(), convey.ShouldBeFalse)
				})
			})

			convey.Convey("And the broadcaster fails", func() {
				b.errs["v1"] = errors.New("rpc down")
				q.ballots <- ballotFor("v1", 4000)
				convey.So(waitFor(func() bool { return rec.count() == 1 }), convey.ShouldBeTrue)

				convey.Convey("Then the failure is recorded and not retried", func() {
					res := rec.byVoter()["v1"]
					convey.So(res.Status, convey.ShouldEqual, model.StatusFailed)
					convey.So(res.Error, convey.ShouldEqual, "rpc down")
					convey.So(b.callCount(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the broadcaster only dry-runs", func() {
			b.dryRun = true
			w := worker.NewInMemoryWorker(q, b, worker.WithRecorders(rec))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.ballots <- ballotFor("v2", -500)
			convey.So(waitFor(func() bool { return rec.count() == 1 }), convey.ShouldBeTrue)

			convey.Convey("Then the result status is dry_run", func() {
				convey.So(rec.byVoter()["v2"].Status, convey.ShouldEqual, model.StatusDryRun)
			})
		})

		convey.Convey("When a broadcast exceeds the timeout", func() {
			b.delay = time.Second
			w := worker.NewInMemoryWorker(q, b, worker.WithRecorders(rec), worker.WithTimeout(20*time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.ballots <- ballotFor("v3", 100)
			convey.So(waitFor(func() bool { return rec.count() == 1 }), convey.ShouldBeTrue)

			convey.Convey("Then it is recorded as failed with the deadline error", func() {
				res := rec.byVoter()["v3"]
				convey.So(res.Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(res.Error, convey.ShouldContainSubstring, "deadline")
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, b)
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()
			_ = q.Close()

			convey.Convey("Then the worker exits", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not exit after queue close")
				}
			})
		})
	})
}

func TestPoolIsolation(t *testing.T) {
	convey.Convey("Given a pool broadcasting ballots for several voters", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		b := newMockBroadcaster()
		b.errs["v2"] = errors.New("insufficient voting power")
		b.panics["v3"] = true
		rec := &mockRecorder{err: errors.New("sink unavailable")}

		pool := worker.NewPool(2, q, b, worker.WithRecorders(rec))
		convey.So(pool.Size(), convey.ShouldEqual, 2)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		for _, v := range []string{"v1", "v2", "v3", "v4"} {
			convey.So(q.Enqueue(ctx, ballotFor(v, 4000)), convey.ShouldBeTrue)
		}

		convey.Convey("When the pool is shut down", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then every ballot is attempted exactly once", func() {
				convey.So(b.callCount(), convey.ShouldEqual, 4)
				convey.So(rec.count(), convey.ShouldEqual, 4)
			})

			convey.Convey("And failures do not affect siblings", func() {
				results := rec.byVoter()
				convey.So(results["v1"].Status, convey.ShouldEqual, model.StatusBroadcast)
				convey.So(results["v2"].Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(results["v3"].Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(results["v3"].Error, convey.ShouldContainSubstring, "panic")
				convey.So(results["v4"].Status, convey.ShouldEqual, model.StatusBroadcast)
			})

			convey.Convey("And the queue is closed", func() {
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPoolStop(t *testing.T) {
	convey.Convey("Given a running pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pool := worker.NewPool(3, q, newMockBroadcaster())
		pool.Start(context.Background())

		convey.Convey("When it is stopped", func() {
			done := make(chan struct{})
			go func() {
				pool.Stop()
				close(done)
			}()

			convey.Convey("Then all workers exit promptly", func() {
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("pool did not stop")
				}
			})
		})
	})
}
