// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults; Load layers file and env on top.
// - Trails and voters are converted to domain types by Rules and VoterList.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/okian/trailvote/internal/domain/model"
)

const defaultScalePercent = 100

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory ballot queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of broadcast workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many stream positions are remembered for redelivery checks.
	DedupeSize int `koanf:"dedupe_size"`

	BroadcastTimeoutMS int `koanf:"broadcast_timeout_ms"`
	PollIntervalMS     int `koanf:"poll_interval_ms"`

	// Mode is the finality mode: head or irreversible.
	Mode string `koanf:"mode"`

	// StartBlock, when non-zero, is where the first subscription starts.
	StartBlock uint32 `koanf:"start_block"`

	ChainURL string `koanf:"chain_url"`
	ChainID  string `koanf:"chain_id"`

	// SignerURL points at the signing service. Empty means dry run.
	SignerURL string `koanf:"signer_url"`

	// KafkaBrokers enables the result feed when non-empty.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	// RecentVotes is how many results /votes can return.
	RecentVotes int `koanf:"recent_votes"`

	Trails map[string]Trail `koanf:"trails"`

	// Voters holds "name credential" strings or {name, credential} maps.
	Voters []any `koanf:"voters"`
}

// Trail is one trail's rule set as written in the config file.
type Trail struct {
	// Account is the watched account; defaults to the trail's key.
	Account        string   `koanf:"account"`
	MaxAge         int      `koanf:"max_age"`
	EnableComments bool     `koanf:"enable_comments"`
	AllowUpvote    bool     `koanf:"allow_upvote"`
	AllowDownvote  bool     `koanf:"allow_downvote"`
	SkipTags       []string `koanf:"skip_tags"`
	OnlyTags       []string `koanf:"only_tags"`
	ScaleVotes     *int     `koanf:"scale_votes"`
	AgeFrom        string   `koanf:"age_from"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          1024,
		WorkerCount:        runtime.NumCPU() * 4,
		DedupeSize:         50_000,
		BroadcastTimeoutMS: 30_000,
		PollIntervalMS:     1_000,
		Mode:               string(model.ModeIrreversible),
		ChainURL:           "https://api.steemit.com",
		KafkaTopic:         "trailvote.results",
		RecentVotes:        1_000,
	}
}

// BroadcastTimeout returns BroadcastTimeoutMS as a duration.
func (c *Config) BroadcastTimeout() time.Duration {
	return time.Duration(c.BroadcastTimeoutMS) * time.Millisecond
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// FinalityMode parses Mode.
func (c *Config) FinalityMode() (model.Mode, error) {
	m, err := model.ParseMode(c.Mode)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return m, nil
}

// Brokers returns the Kafka brokers, splitting comma separated entries.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Rules converts the configured trails, ordered by name.
func (c *Config) Rules() ([]model.TrailRule, error) {
	names := make([]string, 0, len(c.Trails))
	for name := range c.Trails {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]model.TrailRule, 0, len(names))
	for _, name := range names {
		t := c.Trails[name]
		rule := model.TrailRule{
			Name:           name,
			Account:        t.Account,
			MaxAgeMinutes:  t.MaxAge,
			EnableComments: t.EnableComments,
			AllowUpvote:    t.AllowUpvote,
			AllowDownvote:  t.AllowDownvote,
			SkipTags:       t.SkipTags,
			OnlyTags:       t.OnlyTags,
			ScalePercent:   defaultScalePercent,
			AgeFrom:        model.AgeFromVote,
		}
		if rule.Account == "" {
			rule.Account = name
		}
		if t.ScaleVotes != nil {
			rule.ScalePercent = *t.ScaleVotes
		}

		switch {
		case t.MaxAge < 0:
			return nil, fmt.Errorf("%w: trail %q: max_age must not be negative", ErrInvalidConfig, name)
		case rule.ScalePercent < 0:
			return nil, fmt.Errorf("%w: trail %q: scale_votes must not be negative", ErrInvalidConfig, name)
		}

		switch model.AgeBasis(strings.ToLower(t.AgeFrom)) {
		case "", model.AgeFromVote:
		case model.AgeFromPost:
			rule.AgeFrom = model.AgeFromPost
		default:
			return nil, fmt.Errorf("%w: trail %q: age_from must be vote or post, got %q", ErrInvalidConfig, name, t.AgeFrom)
		}

		rules = append(rules, rule)
	}
	return rules, nil
}

// VoterList converts the configured voters. Both the "name credential" string
// form and the {name, credential} map form are accepted; a string may hold
// several comma separated entries.
func (c *Config) VoterList() ([]model.Voter, error) {
	var voters []model.Voter
	for i, raw := range c.Voters {
		switch v := raw.(type) {
		case string:
			for _, entry := range splitList([]string{v}) {
				voter, err := model.ParseVoter(entry)
				if err != nil {
					return nil, fmt.Errorf("%w: voters[%d]: %w", ErrInvalidConfig, i, err)
				}
				voters = append(voters, voter)
			}
		case map[string]any:
			name, _ := v["name"].(string)
			cred, _ := v["credential"].(string)
			if name == "" || cred == "" {
				return nil, fmt.Errorf("%w: voters[%d]: name and credential are required", ErrInvalidConfig, i)
			}
			voters = append(voters, model.Voter{Name: name, Credential: cred})
		default:
			return nil, fmt.Errorf("%w: voters[%d]: unsupported entry of type %T", ErrInvalidConfig, i, raw)
		}
	}
	return voters, nil
}

// Validate checks the configuration without converting it.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ChainURL) == "" {
		return fmt.Errorf("%w: chain_url must not be empty", ErrInvalidConfig)
	}
	if _, err := c.FinalityMode(); err != nil {
		return err
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	if _, err := c.VoterList(); err != nil {
		return err
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
