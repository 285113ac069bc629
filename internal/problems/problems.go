// Package problems manages help postings and their risk tiers. A posting's
// risk level decides the minimum trust score required to interact with it
// and whether ID exchange or a deposit is recommended before meeting.
package problems

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/pagination"
)

// RiskLevel classifies how much can go wrong when strangers meet over a
// posting.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"    // errands, quick emergencies
	RiskMedium RiskLevel = "medium" // time access, home visits
	RiskHigh   RiskLevel = "high"   // resource rental, valuables
)

// Tier is the policy attached to a risk level.
type Tier struct {
	MinTrustScore         int  `json:"minTrustScore"`
	IDExchangeRecommended bool `json:"idExchangeRecommended"`
	DepositRecommended    bool `json:"depositRecommended"`
}

// tiers is the closed risk policy table. Thresholds mirror the trust
// engine's access gating.
var tiers = map[RiskLevel]Tier{
	RiskLow:    {MinTrustScore: 40},
	RiskMedium: {MinTrustScore: 50, IDExchangeRecommended: true},
	RiskHigh:   {MinTrustScore: 70, IDExchangeRecommended: true, DepositRecommended: true},
}

// TierFor returns the policy for a risk level, or a validation error for
// an unknown level.
func TierFor(level RiskLevel) (Tier, error) {
	t, ok := tiers[level]
	if !ok {
		return Tier{}, apperr.Validationf("unknown risk level %q", level)
	}
	return t, nil
}

// Status is a posting's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress" // escrow locked, helper assigned
	StatusClosed     Status = "closed"      // help delivered, escrow released
	StatusCancelled  Status = "cancelled"   // withdrawn by poster before a lock
)

// Problem is one help posting.
type Problem struct {
	ID          string    `json:"id"`
	PosterID    string    `json:"posterId"`
	HelperID    string    `json:"helperId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Status      Status    `json:"status"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	AmountINR   int64     `json:"amountInr,omitempty"` // offered payment, rupees
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists problems.
//
// Transition must be conditional on the expected current status so two
// racing state changes cannot both win.
type Store interface {
	Create(ctx context.Context, p *Problem) error
	Get(ctx context.Context, id string) (*Problem, error)
	// ListOpen returns open postings newest first. A non-nil cursor
	// resumes after that (created_at, id) position.
	ListOpen(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Problem, error)
	Transition(ctx context.Context, id string, from, to Status, helperID string) error
}
