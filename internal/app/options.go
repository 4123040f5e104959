package service

import (
	"time"

	workerpool "github.com/okian/trailvote/internal/adapters/mq/worker"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of broadcast workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ballot queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many stream positions are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRecentVotes sets how many results Recent can return.
func WithRecentVotes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentVotes = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMode sets the finality mode of the vote stream.
func WithMode(m model.Mode) Option {
	return func(s *Service) {
		if m != "" {
			s.mode = m
		}
	}
}

// WithStartBlock makes the first subscription start at block instead of the tip.
func WithStartBlock(block uint32) Option {
	return func(s *Service) {
		s.startBlock = block
	}
}

// WithTrails sets the trail rules.
func WithTrails(trails []model.TrailRule) Option {
	return func(s *Service) {
		s.trails = append([]model.TrailRule(nil), trails...)
	}
}

// WithVoters sets the identities mirrored votes are cast under.
func WithVoters(voters []model.Voter) Option {
	return func(s *Service) {
		s.voters = append([]model.Voter(nil), voters...)
	}
}

// WithChain sets the node client used to stream votes and fetch content.
func WithChain(c Chain) Option {
	return func(s *Service) {
		if c != nil {
			s.chain = c
		}
	}
}

// WithBroadcaster sets what submits ballots. Without one the service runs
// in dry-run mode.
func WithBroadcaster(b workerpool.Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithRecorders adds sinks that receive every vote result, after the
// in-memory result store.
func WithRecorders(recorders ...workerpool.Recorder) Option {
	return func(s *Service) {
		s.recorders = append(s.recorders, recorders...)
	}
}

// WithBroadcastTimeout bounds a single broadcast attempt.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.broadcastTimeout = d
		}
	}
}

// WithClock sets the time source used for eligibility decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
