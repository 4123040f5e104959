// Package dispatch turns a watched vote into ballots: it evaluates every
// trail following the voter and enqueues one ballot per voter identity that
// has not already voted on the content.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trailvote/internal/domain/eligibility"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/okian/trailvote/pkg/metrics"
)

// Enqueuer accepts ballots without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, b model.Ballot) bool
}

// Dispatcher routes watched votes to the broadcast queue. Its configuration
// is read-only after construction.
type Dispatcher struct {
	queue     Enqueuer
	trails    []model.TrailRule
	byAccount map[string][]model.TrailRule
	voters    []model.Voter
	logger    logger.Logger
}

// New creates a dispatcher for the given trails and voter identities.
func New(q Enqueuer, trails []model.TrailRule, voters []model.Voter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:     q,
		byAccount: make(map[string][]model.TrailRule),
		voters:    append([]model.Voter(nil), voters...),
	}
	for _, t := range trails {
		if t.Account == "" {
			t.Account = t.Name
		}
		d.trails = append(d.trails, t)
		d.byAccount[t.Account] = append(d.byAccount[t.Account], t)
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dispatch")
	}
	return d
}

// Watches reports whether any trail follows account.
func (d *Dispatcher) Watches(account string) bool {
	_, ok := d.byAccount[account]
	return ok
}

// Trails returns the configured rules.
func (d *Dispatcher) Trails() []model.TrailRule {
	return append([]model.TrailRule(nil), d.trails...)
}

// Voters returns the configured identities.
func (d *Dispatcher) Voters() []model.Voter {
	return append([]model.Voter(nil), d.voters...)
}

// Route evaluates ev against every trail following its voter and dispatches
// the eligible ones. Trails are independent of each other.
func (d *Dispatcher) Route(ctx context.Context, now time.Time, ev model.VoteEvent, c model.Content) { //nolint:gocritic // hugeParam
	for _, rule := range d.byAccount[ev.Voter] {
		dec := eligibility.Evaluate(now, ev, c, rule)
		metrics.RecordTrailDecision(rule.Name, string(dec.Reason))

		if !dec.Eligible {
			d.logger.Debug(ctx, "trail skipped vote",
				logger.String("trail", rule.Name),
				logger.String("content", ev.Slug()),
				logger.String("reason", string(dec.Reason)),
				logger.Int("age_min", dec.AgeMin),
			)
			continue
		}

		d.logger.Info(ctx, fmt.Sprintf("%s voted for %s at %.2f %%", ev.Voter, ev.Slug(), float64(ev.Weight)/100),
			logger.String("trail", rule.Name),
			logger.Int("weight", dec.Weight),
		)

		ballots := Plan(rule, ev, c, dec.Weight, d.voters)
		for i := range ballots {
			ballots[i].CreatedAt = now
		}
		if skipped := len(d.voters) - len(ballots); skipped > 0 {
			for i := 0; i < skipped; i++ {
				metrics.RecordBallotSkipped()
			}
			d.logger.Debug(ctx, "voters already voted",
				logger.String("trail", rule.Name),
				logger.String("content", ev.Slug()),
				logger.Int("skipped", skipped),
			)
		}

		d.Dispatch(ctx, ballots)
	}
}

// Plan builds one ballot per voter identity absent from the content's active
// voters.
func Plan(rule model.TrailRule, ev model.VoteEvent, c model.Content, weight int, voters []model.Voter) []model.Ballot { //nolint:gocritic // hugeParam
	ballots := make([]model.Ballot, 0, len(voters))
	for _, v := range voters {
		if c.HasVoted(v.Name) {
			continue
		}
		ballots = append(ballots, model.Ballot{
			ID:           uuid.NewString(),
			Trail:        rule.Name,
			Voter:        v,
			Author:       ev.Author,
			Permlink:     ev.Permlink,
			Weight:       weight,
			SourceWeight: ev.Weight,
			Source:       ev.Voter,
			EventID:      ev.ID(),
		})
	}
	return ballots
}

// Dispatch enqueues ballots and returns how many were accepted. A ballot the
// queue rejects is dropped on its own; it never blocks the caller or its
// siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, ballots []model.Ballot) int {
	queued := 0
	for _, b := range ballots {
		if d.queue.Enqueue(ctx, b) {
			metrics.RecordBallotQueued()
			queued++
			continue
		}

		reason := "queue_full"
		if q, ok := d.queue.(interface{ IsClosed() bool }); ok && q.IsClosed() {
			reason = "queue_closed"
		}
		metrics.RecordBallotDropped(reason)
		d.logger.Warn(ctx, "dropping ballot",
			logger.String("reason", reason),
			logger.String("trail", b.Trail),
			logger.String("voter", b.Voter.Name),
			logger.String("content", b.Author+"/"+b.Permlink),
		)
	}
	return queued
}
