package traileval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/trailvote/internal/domain/model"
)

// Config describes the hypothetical vote to evaluate.
type Config struct {
	Voter    string    // account casting the vote
	Author   string    // content author
	Permlink string    // content permlink
	Weight   int       // signed weight, -10000..10000
	At       time.Time // vote time; zero means now
	JSON     bool      // print the report as JSON
}

// Validate checks the vote fields.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Voter) == "":
		return errors.New("missing -voter")
	case strings.TrimSpace(c.Author) == "":
		return errors.New("missing -author")
	case strings.TrimSpace(c.Permlink) == "":
		return errors.New("missing -permlink")
	case c.Weight < -MaxWeight || c.Weight > MaxWeight:
		return fmt.Errorf("weight %d out of range [-%d, %d]", c.Weight, MaxWeight, MaxWeight)
	}
	return nil
}

// Event builds the vote event. now is used when At is zero.
func (c *Config) Event(now time.Time) model.VoteEvent {
	at := c.At
	if at.IsZero() {
		at = now
	}
	return model.VoteEvent{
		Voter:     c.Voter,
		Author:    c.Author,
		Permlink:  c.Permlink,
		Weight:    c.Weight,
		Timestamp: at.UTC(),
	}
}

// Report is the outcome of one evaluation.
type Report struct {
	Voter     string        `json:"voter"`
	Content   string        `json:"content"`
	Weight    int           `json:"weight"`
	Reply     bool          `json:"reply"`
	Tags      []string      `json:"tags"`
	Evaluated time.Time     `json:"evaluated_at"`
	Trails    []TrailReport `json:"trails"`
}

// TrailReport is the decision of one trail following the voter.
type TrailReport struct {
	Trail    string          `json:"trail"`
	Eligible bool            `json:"eligible"`
	Reason   string          `json:"reason"`
	AgeMin   int             `json:"age_minutes"`
	Weight   int             `json:"weight"`
	Ballots  []BallotPreview `json:"ballots,omitempty"`
}

// BallotPreview is what would happen for one voter identity.
type BallotPreview struct {
	Voter        string `json:"voter"`
	Weight       int    `json:"weight"`
	AlreadyVoted bool   `json:"already_voted"`
}
