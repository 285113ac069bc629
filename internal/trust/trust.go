// Package trust maintains the bounded reputation score that gates what a
// user may see, post, and accept on the marketplace.
//
// Scores live in [0,100], start at 50, and move only through named trust
// events (never set directly). The badge tier is derived from the score on
// every read and never cached.
package trust

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Score bounds and defaults.
const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = 50

	// StreakBonusCap limits the cumulative active-streak bonus per user.
	StreakBonusCap = 10
)

// EventType identifies a named trust event. The valid set is closed;
// unknown events are a validation error, never silently ignored.
type EventType string

const (
	EventHelpCompleted       EventType = "help_completed"       // helper finished a task
	EventRatingHigh          EventType = "rating_high"          // 4-5 star rating
	EventRatingNeutral       EventType = "rating_neutral"       // 3 star rating
	EventRatingLow           EventType = "rating_low"           // 1-2 star rating
	EventHelperNoShow        EventType = "helper_no_show"       // accepted then never arrived
	EventVerifiedReport      EventType = "verified_report"      // admin-verified report against user
	EventActiveStreak        EventType = "active_streak"        // 7 consecutive active days
	EventLocationConsistency EventType = "location_consistency" // 30-day location consistency bonus
)

// deltas maps each event to its score adjustment. Dispatch goes through
// this table rather than a string switch so the valid set stays closed.
var deltas = map[EventType]int{
	EventHelpCompleted:       +3,
	EventRatingHigh:          +2,
	EventRatingNeutral:       0,
	EventRatingLow:           -5,
	EventHelperNoShow:        -10,
	EventVerifiedReport:      -15,
	EventActiveStreak:        +1,
	EventLocationConsistency: +5,
}

// Delta returns the table delta for an event, or a validation error for
// an unknown event type.
func Delta(event EventType) (int, error) {
	d, ok := deltas[event]
	if !ok {
		return 0, apperr.Validationf("unknown trust event %q", event)
	}
	return d, nil
}

// Clamp bounds a score to [MinScore, MaxScore]. Clamping, never wraparound.
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Apply combines a delta onto the current score and clamps the result.
// Out-of-range input is clamped first, never rejected.
func Apply(current, delta int) int {
	return Clamp(Clamp(current) + delta)
}

// Badge is the coarse trust tier derived from a score.
type Badge string

const (
	BadgeRestricted Badge = "restricted" // score < 40
	BadgeNeutral    Badge = "neutral"    // 40-69
	BadgeTrusted    Badge = "trusted"    // >= 70
)

// BadgeFor derives the badge tier for a score. Recomputed on every read.
func BadgeFor(score int) Badge {
	switch {
	case score >= 70:
		return BadgeTrusted
	case score >= 40:
		return BadgeNeutral
	default:
		return BadgeRestricted
	}
}

// Action is a gated marketplace action.
type Action string

const (
	ActionViewEmergency Action = "view_emergency" // view or post emergency tasks
	ActionTimeAccess    Action = "time_access"    // view time-access tasks
	ActionResourceRent  Action = "resource_rent"  // view resource-rent tasks
	ActionHighRiskPost  Action = "high_risk_post" // view or accept high-risk postings
)

// actionMinScore maps each action to its minimum required trust score.
// Mirrors the problem risk-tier thresholds.
var actionMinScore = map[Action]int{
	ActionViewEmergency: 40,
	ActionTimeAccess:    50,
	ActionResourceRent:  70,
	ActionHighRiskPost:  70,
}

// AccessResult reports whether an action is allowed for a score.
type AccessResult struct {
	Allowed  bool   `json:"allowed"`
	Required int    `json:"required"`
	Reason   string `json:"reason,omitempty"`
}

// CheckAccess decides whether a user with the given score may perform the
// action. Unknown actions are a validation error.
func CheckAccess(score int, action Action) (AccessResult, error) {
	min, ok := actionMinScore[action]
	if !ok {
		return AccessResult{}, apperr.Validationf("unknown access action %q", action)
	}
	score = Clamp(score)
	if score < min {
		return AccessResult{
			Allowed:  false,
			Required: min,
			Reason:   "trust score too low for this action",
		}, nil
	}
	return AccessResult{Allowed: true, Required: min}, nil
}

// Record is a user's stored trust state. Score is mutated only through
// Service.Apply; Version backs the optimistic concurrency check.
type Record struct {
	UserID               string    `json:"userId"`
	Score                int       `json:"score"`
	StreakBonusAwarded   int       `json:"streakBonusAwarded"`
	LocationBonusGranted bool      `json:"locationBonusGranted"`
	Version              int64     `json:"-"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Badge derives the current badge tier for the record.
func (r *Record) Badge() Badge {
	return BadgeFor(r.Score)
}

// Store persists trust records.
//
// UpdateScore must be conditional on Record.Version (compare-and-swap):
// two concurrent events for the same user must never lose an update.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	UpdateScore(ctx context.Context, rec *Record) error
}
