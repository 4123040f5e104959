package model

import (
	"fmt"
	"strings"
)

// Mode selects which end of the chain the stream follows.
type Mode string

// Finality modes.
const (
	ModeHead         Mode = "head"
	ModeIrreversible Mode = "irreversible"
)

// ParseMode parses a finality mode. An empty string yields ModeIrreversible.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIrreversible:
		return ModeIrreversible, nil
	case ModeHead:
		return ModeHead, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// AgeBasis selects the timestamp a trail measures age from.
type AgeBasis string

// Age bases.
const (
	AgeFromVote AgeBasis = "vote"
	AgeFromPost AgeBasis = "post"
)

// TrailRule describes how votes cast by one watched account are mirrored.
type TrailRule struct {
	Name           string
	Account        string // watched account
	MaxAgeMinutes  int
	EnableComments bool
	AllowUpvote    bool
	AllowDownvote  bool
	SkipTags       []string
	OnlyTags       []string // nil when not configured
	ScalePercent   int      // 100 mirrors the original weight
	AgeFrom        AgeBasis
}

// Voter is an identity mirrored votes are broadcast under.
type Voter struct {
	Name       string
	Credential string
}

// String never includes the credential.
func (v Voter) String() string {
	return v.Name
}

// ParseVoter accepts the "name credential" form.
func ParseVoter(s string) (Voter, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Voter{}, fmt.Errorf("voter entry must be \"name credential\", got %d fields", len(parts))
	}
	return Voter{Name: parts[0], Credential: parts[1]}, nil
}
