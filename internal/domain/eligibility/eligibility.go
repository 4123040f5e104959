// Package eligibility decides whether a trailed vote should be mirrored under
// a trail's rules and at what weight.
package eligibility

import (
	"time"

	"github.com/okian/trailvote/internal/domain/model"
)

// Reason names the rule that produced a decision.
type Reason string

// Decision reasons, in evaluation order.
const (
	ReasonEligible         Reason = "eligible"
	ReasonTooOld           Reason = "too_old"
	ReasonReplyDisabled    Reason = "reply_disabled"
	ReasonUpvoteDisabled   Reason = "upvote_disabled"
	ReasonDownvoteDisabled Reason = "downvote_disabled"
	ReasonUnvote           Reason = "unvote"
	ReasonSkipTag          Reason = "skip_tag"
	ReasonOnlyTag          Reason = "only_tag"
)

// Decision is the outcome of evaluating one event against one trail.
type Decision struct {
	Eligible bool
	Weight   int // scaled weight; zero unless Eligible
	Reason   Reason
	AgeMin   int // age in whole minutes used for the age check
}

func skip(r Reason, age int) Decision {
	return Decision{Reason: r, AgeMin: age}
}

// Evaluate applies rule to the event and content snapshot. It is pure: now is
// supplied by the caller and nothing is mutated.
func Evaluate(now time.Time, ev model.VoteEvent, c model.Content, rule model.TrailRule) Decision {
	age := AgeMinutes(now, ageBasis(ev, c, rule))
	if age > rule.MaxAgeMinutes {
		return skip(ReasonTooOld, age)
	}
	if c.IsReply() && !rule.EnableComments {
		return skip(ReasonReplyDisabled, age)
	}
	if ev.Weight > 0 && !rule.AllowUpvote {
		return skip(ReasonUpvoteDisabled, age)
	}
	if ev.Weight < 0 && !rule.AllowDownvote {
		return skip(ReasonDownvoteDisabled, age)
	}
	if ev.Weight == 0 {
		return skip(ReasonUnvote, age)
	}
	if intersects(c.Tags, rule.SkipTags) {
		return skip(ReasonSkipTag, age)
	}
	// Rejects on overlap, matching the behavior trails were configured against.
	if rule.OnlyTags != nil && intersects(c.Tags, rule.OnlyTags) {
		return skip(ReasonOnlyTag, age)
	}

	return Decision{
		Eligible: true,
		Weight:   Scale(ev.Weight, rule.ScalePercent),
		Reason:   ReasonEligible,
		AgeMin:   age,
	}
}

// AgeMinutes returns whole minutes elapsed from t to now, floored.
func AgeMinutes(now, t time.Time) int {
	d := now.Sub(t)
	m := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return m
}

// Scale applies percent to weight, truncating toward zero.
func Scale(weight, percent int) int {
	return weight * percent / 100
}

func ageBasis(ev model.VoteEvent, c model.Content, rule model.TrailRule) time.Time {
	if rule.AgeFrom == model.AgeFromPost && !c.Created.IsZero() {
		return c.Created
	}
	return ev.Timestamp
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
