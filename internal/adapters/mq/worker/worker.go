// Package worker broadcasts queued ballots. Every ballot is attempted once;
// failures are logged and recorded, never retried.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/okian/trailvote/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultBroadcastTimeout = 30 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Broadcaster submits a vote under a voter identity.
type Broadcaster interface {
	Broadcast(ctx context.Context, voter model.Voter, op model.VoteOp) (model.Receipt, error)
}

// Recorder receives the result of every broadcast attempt.
type Recorder interface {
	Record(ctx context.Context, res model.VoteResult) error
}

// Queue defines how workers receive ballots.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Ballot
}

// Worker processes ballots from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	broadcaster Broadcaster
	recorders   []Recorder
	name        string
	timeout     time.Duration

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, b Broadcaster, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		broadcaster: b,
		name:        "worker",
		timeout:     defaultBroadcastTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ballots := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-ballots:
			if !ok {
				return
			}
			w.process(ctx, b)
		}
	}
}

// Shutdown stops the worker after its current ballot.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process broadcasts one ballot and reports the outcome. Nothing that happens
// here may stop the worker loop.
func (w *InMemoryWorker) process(ctx context.Context, b model.Ballot) { //nolint:gocritic // hugeParam: Ballot is passed by value for channel semantics
	res := model.NewResult(b)
	start := time.Now()

	receipt, err := w.broadcast(ctx, b)

	switch {
	case err != nil:
		res.Status = model.StatusFailed
		res.Error = err.Error()
		w.logger.Error(ctx, "broadcast failed",
			logger.String("voter", b.Voter.Name),
			logger.String("content", b.Author+"/"+b.Permlink),
			logger.String("trail", b.Trail),
			logger.String("ballot_id", b.ID),
			logger.Error(err),
		)
	case receipt.DryRun:
		res.Status = model.StatusDryRun
		w.logger.Info(ctx, describe(b)+" (dry run)", logger.String("trail", b.Trail))
	default:
		res.Status = model.StatusBroadcast
		res.TxID = receipt.TxID
		w.logger.Info(ctx, describe(b),
			logger.String("trail", b.Trail),
			logger.String("tx_id", receipt.TxID),
		)
	}

	w.finish(ctx, &res, start)
}

// broadcast calls the broadcaster with the per-call timeout, turning a panic
// into an error.
func (w *InMemoryWorker) broadcast(ctx context.Context, b model.Ballot) (receipt model.Receipt, err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcaster panic: %v", r)
		}
	}()

	bctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.broadcaster.Broadcast(bctx, b.Voter, b.Op())
}

func (w *InMemoryWorker) finish(ctx context.Context, res *model.VoteResult, start time.Time) {
	res.Latency = time.Since(start)
	res.At = time.Now().UTC()

	metrics.RecordBroadcast(string(res.Status))
	metrics.RecordBroadcastLatency(float64(res.Latency.Milliseconds()))

	for _, r := range w.recorders {
		if err := r.Record(ctx, *res); err != nil {
			w.logger.Warn(ctx, "recording vote result failed",
				logger.String("ballot_id", res.BallotID),
				logger.Error(err),
			)
		}
	}
}

// describe renders the broadcast log line, e.g. "v1 did upvote for bob/p1 at 40.00%".
func describe(b model.Ballot) string { //nolint:gocritic // hugeParam
	return fmt.Sprintf("%s did %s for %s/%s at %.2f%%", b.Voter.Name, b.Direction(), b.Author, b.Permlink, b.Percent())
}

// Pool manages multiple workers reading from one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	stopOnce sync.Once
	logger   logger.Logger
}

// NewPool creates a new worker pool. opts are applied to every worker.
func NewPool(workerCount int, q Queue, b Broadcaster, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, b, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop signals every worker to exit after its current ballot, without
// draining the queue.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
			p.logger.Warn(context.Background(), "worker stop timed out", logger.Int("worker_id", i))
		}
	}
}

// Shutdown closes the queue and lets workers drain what is already queued.
// Workers still busy when ctx or the pool timeout expires are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			w.stop()
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
