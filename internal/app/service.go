// Package service wires the vote stream, the dispatcher and the broadcast
// worker pool into one runnable unit and exposes what the HTTP API reads.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/trailvote/internal/adapters/chain"
	eventqueue "github.com/okian/trailvote/internal/adapters/mq/queue"
	workerpool "github.com/okian/trailvote/internal/adapters/mq/worker"
	repository "github.com/okian/trailvote/internal/adapters/repository"
	"github.com/okian/trailvote/internal/dispatch"
	"github.com/okian/trailvote/internal/domain/dedupe"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/internal/stream"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/okian/trailvote/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

// Chain is the node client the service streams from.
type Chain interface {
	stream.Subscriber
	stream.ContentFetcher
}

// Service runs the trail pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	results    *repository.ResultStore
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	dispatcher *dispatch.Dispatcher
	consumer   *stream.Consumer

	// Collaborators
	chain       Chain
	broadcaster workerpool.Broadcaster
	recorders   []workerpool.Recorder

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	recentVotes      int
	broadcastTimeout time.Duration
	mode             model.Mode
	startBlock       uint32
	trails           []model.TrailRule
	voters           []model.Voter
	now              func() time.Time

	// State
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        1024,
		dedupeSize:       50000,
		recentVotes:      1000,
		broadcastTimeout: 30 * time.Second,
		mode:             model.ModeIrreversible,
		now:              func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	for i := range s.trails {
		if s.trails[i].Account == "" {
			s.trails[i].Account = s.trails[i].Name
		}
	}

	s.results = repository.NewResultStore(repository.WithCapacity(s.recentVotes))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	return s
}

// Start builds the pipeline and runs the vote stream in the background until
// Stop is called. Cancelling ctx after Start returns does not stop it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.chain == nil {
		return ErrNoChain
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting trail service...",
		logger.String("mode", string(s.mode)),
		logger.Int("trails", len(s.trails)),
		logger.Int("voters", len(s.voters)),
	)
	if len(s.trails) == 0 {
		s.logger.Warn(ctx, "no trails configured, votes will not be mirrored")
	}
	if len(s.voters) == 0 {
		s.logger.Warn(ctx, "no voters configured, votes will not be mirrored")
	}

	broadcaster := s.broadcaster
	if broadcaster == nil {
		s.logger.Warn(ctx, "no broadcaster configured, running in dry-run mode")
		broadcaster = chain.NewDryRunBroadcaster(nil)
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	recorders := append([]workerpool.Recorder{s.results}, s.recorders...)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, broadcaster,
		workerpool.WithTimeout(s.broadcastTimeout),
		workerpool.WithRecorders(recorders...),
	)

	s.dispatcher = dispatch.New(s.queue, s.trails, s.voters)

	s.consumer = stream.NewConsumer(s.chain, s.chain, s.dispatcher,
		stream.WithMode(s.mode),
		stream.WithDeduper(s.deduper),
		stream.WithClock(s.now),
		stream.WithStartBlock(s.startBlock),
	)

	// Workers outlive the stream so Stop can drain the queue.
	base := context.WithoutCancel(ctx)
	s.pool.Start(base)

	runCtx, cancel := context.WithCancel(base)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(c *stream.Consumer, done chan struct{}) {
		defer close(done)
		_ = c.Run(runCtx)
	}(s.consumer, s.done)

	s.started = true
	s.logger.Info(ctx, "trail service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop stops the vote stream, then lets the workers drain the ballots
// already queued.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping trail service...")

	s.cancel()
	<-s.done

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "trail service stopped")
}

// Recent returns recorded vote results, newest first.
func (s *Service) Recent(ctx context.Context, q repository.Query) ([]model.VoteResult, error) {
	return s.results.Recent(ctx, q)
}

// Trails returns the configured trail rules.
func (s *Service) Trails() []model.TrailRule {
	return append([]model.TrailRule(nil), s.trails...)
}

// Voters returns the configured voter identities.
func (s *Service) Voters() []model.Voter {
	return append([]model.Voter(nil), s.voters...)
}

// StreamStatus returns the consumer's latest snapshot.
func (s *Service) StreamStatus() (stream.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.consumer == nil {
		return stream.Status{}, ErrNotStarted
	}
	return s.consumer.Status(), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"mode":          s.mode,
		"trails":        len(s.trails),
		"voters":        len(s.voters),
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
		"results":       s.results.Totals(ctx),
		"retained":      s.results.Count(ctx),
	}

	if s.consumer != nil {
		stats["stream"] = s.consumer.Status()
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workerCount"] = s.pool.Size()

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
