package model

import "time"

// Ballot is a single mirrored vote waiting to be broadcast under one identity.
type Ballot struct {
	ID           string
	Trail        string
	Voter        Voter
	Author       string
	Permlink     string
	Weight       int // scaled weight
	SourceWeight int // weight of the trailed vote
	Source       string
	EventID      string
	CreatedAt    time.Time
}

// Direction names the kind of vote the ballot casts.
func (b Ballot) Direction() string {
	switch {
	case b.Weight > 0:
		return "upvote"
	case b.Weight < 0:
		return "downvote"
	default:
		return "unvote"
	}
}

// Percent returns the weight as a percentage.
func (b Ballot) Percent() float64 {
	return float64(b.Weight) / 100
}

// VoteOp is the vote operation submitted to the chain.
type VoteOp struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int    `json:"weight"`
}

// Op builds the chain operation for the ballot.
func (b Ballot) Op() VoteOp {
	return VoteOp{Voter: b.Voter.Name, Author: b.Author, Permlink: b.Permlink, Weight: b.Weight}
}

// ResultStatus is the outcome of a broadcast attempt.
type ResultStatus string

// Broadcast outcomes.
const (
	StatusBroadcast ResultStatus = "broadcast"
	StatusFailed    ResultStatus = "failed"
	StatusDryRun    ResultStatus = "dry_run"
)

// VoteResult records what happened to a ballot.
type VoteResult struct {
	BallotID string        `json:"ballot_id"`
	Trail    string        `json:"trail"`
	Voter    string        `json:"voter"`
	Source   string        `json:"source"`
	Author   string        `json:"author"`
	Permlink string        `json:"permlink"`
	Weight   int           `json:"weight"`
	EventID  string        `json:"event_id"`
	Status   ResultStatus  `json:"status"`
	TxID     string        `json:"tx_id,omitempty"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency_ns"`
	At       time.Time     `json:"at"`
}

// NewResult starts a result for b; the caller fills in the outcome.
func NewResult(b Ballot) VoteResult {
	return VoteResult{
		BallotID: b.ID,
		Trail:    b.Trail,
		Voter:    b.Voter.Name,
		Source:   b.Source,
		Author:   b.Author,
		Permlink: b.Permlink,
		Weight:   b.Weight,
		EventID:  b.EventID,
	}
}

// Receipt is what a broadcaster reports for an accepted vote.
type Receipt struct {
	TxID   string
	DryRun bool // nothing was submitted to the chain
}
