// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// VoteEvent is one vote operation observed on the upstream stream.
type VoteEvent struct {
	Voter     string    // account that cast the vote
	Author    string    // content author
	Permlink  string    // content permlink
	Weight    int       // signed weight in hundredths of a percent, -10000..10000
	Timestamp time.Time // operation timestamp, UTC

	// Stream position.
	Block   uint32
	TrxID   string
	TrxNum  int // index of the transaction in the block
	OpIndex int // index of the operation in the transaction
}

// ID identifies the operation's position on chain. It is stable across
// redeliveries of the same block.
func (e VoteEvent) ID() string {
	return fmt.Sprintf("%d/%d/%d", e.Block, e.TrxNum, e.OpIndex)
}

// Slug returns author/permlink.
func (e VoteEvent) Slug() string {
	return e.Author + "/" + e.Permlink
}

// Content is a snapshot of a post or comment taken when an event is evaluated.
type Content struct {
	Author       string
	Permlink     string
	ParentAuthor string    // empty for top-level posts
	Tags         []string  // ordered, from json_metadata
	ActiveVoters []string  // accounts that already voted
	Created      time.Time // UTC
}

// IsReply reports whether the content is a comment rather than a post.
func (c Content) IsReply() bool {
	return c.ParentAuthor != ""
}

// HasVoted reports whether account appears in the active voter list.
func (c Content) HasVoted(account string) bool {
	for _, v := range c.ActiveVoters {
		if v == account {
			return true
		}
	}
	return false
}
