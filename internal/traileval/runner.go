// Package traileval evaluates a hypothetical vote against the configured
// trails without broadcasting anything.
package traileval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/trailvote/internal/dispatch"
	"github.com/okian/trailvote/internal/domain/eligibility"
	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/logger"
)

// ContentFetcher fetches the content a vote targets.
type ContentFetcher interface {
	GetContent(ctx context.Context, author, permlink string) (model.Content, error)
}

// Run fetches the content and evaluates the vote against every trail that
// follows cfg.Voter.
func Run(ctx context.Context, cfg *Config, fetcher ContentFetcher, trails []model.TrailRule, voters []model.Voter, now time.Time) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ev := cfg.Event(now)
	c, err := fetcher.GetContent(ctx, ev.Author, ev.Permlink)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ev.Slug(), err)
	}

	report := &Report{
		Voter:     ev.Voter,
		Content:   ev.Slug(),
		Weight:    ev.Weight,
		Reply:     c.IsReply(),
		Tags:      c.Tags,
		Evaluated: now,
		Trails:    []TrailReport{},
	}

	for _, rule := range trails {
		account := rule.Account
		if account == "" {
			account = rule.Name
		}
		if account != ev.Voter {
			continue
		}

		d := eligibility.Evaluate(now, ev, c, rule)
		tr := TrailReport{
			Trail:    rule.Name,
			Eligible: d.Eligible,
			Reason:   string(d.Reason),
			AgeMin:   d.AgeMin,
			Weight:   d.Weight,
		}
		if d.Eligible {
			tr.Ballots = preview(rule, ev, c, d.Weight, voters)
		}
		report.Trails = append(report.Trails, tr)

		logger.Get().Debug(ctx, "trail evaluated",
			logger.String("trail", rule.Name),
			logger.String("reason", tr.Reason),
			logger.Int("weight", tr.Weight),
		)
	}

	return report, nil
}

// preview lists every voter identity, marking those dispatch would skip.
func preview(rule model.TrailRule, ev model.VoteEvent, c model.Content, weight int, voters []model.Voter) []BallotPreview { //nolint:gocritic // hugeParam
	planned := make(map[string]int)
	for _, b := range dispatch.Plan(rule, ev, c, weight, voters) {
		planned[b.Voter.Name] = b.Weight
	}

	out := make([]BallotPreview, 0, len(voters))
	for _, v := range voters {
		w, ok := planned[v.Name]
		out = append(out, BallotPreview{Voter: v.Name, Weight: w, AlreadyVoted: !ok})
	}
	return out
}

// Write prints r as text, or as indented JSON when asJSON is set.
func Write(w io.Writer, r *Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	kind := "post"
	if r.Reply {
		kind = "reply"
	}
	if _, err := fmt.Fprintf(w, "%s voting %s (%s) at %.2f%%\n", r.Voter, r.Content, kind, float64(r.Weight)/percentDivisor); err != nil {
		return err
	}
	if len(r.Trails) == 0 {
		_, err := fmt.Fprintf(w, "no trail follows %s\n", r.Voter)
		return err
	}

	for _, t := range r.Trails {
		if !t.Eligible {
			if _, err := fmt.Fprintf(w, "  %s: skipped (%s, age %dm)\n", t.Trail, t.Reason, t.AgeMin); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s: eligible at %.2f%% (age %dm)\n", t.Trail, float64(t.Weight)/percentDivisor, t.AgeMin); err != nil {
			return err
		}
		for _, b := range t.Ballots {
			line := fmt.Sprintf("    %s would vote %.2f%%", b.Voter, float64(b.Weight)/percentDivisor)
			if b.AlreadyVoted {
				line = fmt.Sprintf("    %s already voted", b.Voter)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
