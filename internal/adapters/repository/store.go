// Package repository keeps the most recent vote results in memory for the
// HTTP API. Nothing is persisted across restarts.
package repository

import (
	"context"
	"sync"

	"github.com/okian/trailvote/internal/domain/model"
)

const defaultCapacity = 1000

// Query selects results. Empty fields match everything.
type Query struct {
	Limit int
	Trail string
	Voter string
}

func (q Query) matches(r *model.VoteResult) bool {
	return (q.Trail == "" || r.Trail == q.Trail) && (q.Voter == "" || r.Voter == q.Voter)
}

// Store provides access to recorded vote results.
type Store interface {
	// Record appends a result, evicting the oldest once full.
	Record(ctx context.Context, res model.VoteResult) error

	// Recent returns matching results, newest first.
	// Returns ErrInvalidLimit if q.Limit is not positive.
	Recent(ctx context.Context, q Query) ([]model.VoteResult, error)

	// Count returns the number of retained results.
	Count(ctx context.Context) int

	// Totals returns how many results were recorded per status since start,
	// including evicted ones.
	Totals(ctx context.Context) map[model.ResultStatus]int64
}

// ResultStore is a bounded ring of vote results.
type ResultStore struct {
	mu       sync.RWMutex
	ring     []model.VoteResult
	next     int
	size     int
	capacity int
	totals   map[model.ResultStatus]int64
}

// NewResultStore creates a store with configuration options.
func NewResultStore(opts ...Option) *ResultStore {
	s := &ResultStore{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.ring = make([]model.VoteResult, s.capacity)
	s.totals = make(map[model.ResultStatus]int64)
	return s
}

// Record implements the worker's result recorder.
func (s *ResultStore) Record(_ context.Context, res model.VoteResult) error { //nolint:gocritic // hugeParam
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = res
	s.next = (s.next + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
	s.totals[res.Status]++
	return nil
}

// Recent returns up to q.Limit matching results, newest first.
func (s *ResultStore) Recent(_ context.Context, q Query) ([]model.VoteResult, error) {
	if q.Limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.VoteResult, 0, min(q.Limit, s.size))
	for i := 1; i <= s.size && len(out) < q.Limit; i++ {
		r := &s.ring[(s.next-i+s.capacity)%s.capacity]
		if q.matches(r) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Count returns the number of retained results.
func (s *ResultStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Totals returns per-status counts since start.
func (s *ResultStore) Totals(_ context.Context) map[model.ResultStatus]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ResultStatus]int64, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}
