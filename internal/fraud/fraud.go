// Package fraud combines device, IP, and payment-identifier linkage with
// behavioral counters into a deterministic risk verdict. The same evidence
// always produces the same assessment so admin audit replay stays exact.
package fraud

import (
	"time"
)

// Evidence point values. Each check is independent and only fires when
// its evidence is present.
const (
	pointsSharedDevice  = 40
	pointsSharedIPHigh  = 30 // 5+ accounts on one IP
	pointsSharedIPLow   = 20 // 3-4 accounts on one IP
	pointsDuplicateUPI  = 25
	pointsLowTrust      = 20
	pointsNewAccount    = 15
	pointsNoShowStreak  = 15
	pointsReportHistory = 15

	ipAccountsHigh = 5
	ipAccountsLow  = 3

	lowTrustThreshold = 30
	newAccountMaxAge  = 24 * time.Hour
	noShowThreshold   = 3
	reportThreshold   = 2
)

// Level classifies an aggregate score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Action is the recommended response to an assessment. Enforcement is the
// admin collaborator's job, never this package's.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionFlag   Action = "flag"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// Indicator is one piece of evidence that contributed to the score.
type Indicator struct {
	Type        string `json:"type"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// Assessment is the aggregate verdict for one user at one point in time.
type Assessment struct {
	ID                   string      `json:"id"`
	UserID               string      `json:"userId"`
	Score                int         `json:"score"`
	Level                Level       `json:"level"`
	Action               Action      `json:"action"`
	MultiAccountDetected bool        `json:"multiAccountDetected"`
	Indicators           []Indicator `json:"indicators"`
	AssessedAt           time.Time   `json:"assessedAt"`
}

// Input is the fully-resolved evidence for one assessment. Gathering it
// (linkage queries, profile reads) is the aggregator's job; scoring it is
// pure.
type Input struct {
	UserID string

	// Linkage evidence. Counts exclude the user themselves.
	DevicePeers  int  // other accounts sharing the device fingerprint
	IPAccounts   int  // distinct accounts seen on the IP
	DuplicateUPI bool // UPI id already bound to another account

	// Behavioral evidence from the user's profile.
	TrustScore  int
	AccountAge  time.Duration
	NoShowCount int
	ReportCount int
}

// Evaluate scores evidence into an assessment. Pure and deterministic.
// The returned assessment carries no ID or timestamp; the aggregator
// stamps those when recording.
func Evaluate(in Input) Assessment {
	score := 0
	multi := false
	var indicators []Indicator

	add := func(typ string, points int, desc string) {
		score += points
		indicators = append(indicators, Indicator{Type: typ, Points: points, Description: desc})
	}

	if in.DevicePeers >= 1 {
		add("shared_device", pointsSharedDevice, "device fingerprint shared with another account")
		multi = true
	}

	switch {
	case in.IPAccounts >= ipAccountsHigh:
		add("shared_ip", pointsSharedIPHigh, "IP address shared by 5 or more accounts")
		multi = true
	case in.IPAccounts >= ipAccountsLow:
		add("shared_ip", pointsSharedIPLow, "IP address shared by 3 or more accounts")
	}

	if in.DuplicateUPI {
		add("duplicate_upi", pointsDuplicateUPI, "UPI id already bound to another account")
	}

	if in.TrustScore < lowTrustThreshold {
		add("low_trust", pointsLowTrust, "trust score below 30")
	}
	if in.AccountAge < newAccountMaxAge {
		add("new_account", pointsNewAccount, "account younger than one day")
	}
	if in.NoShowCount > noShowThreshold {
		add("no_show_streak", pointsNoShowStreak, "more than 3 no-shows")
	}
	if in.ReportCount > reportThreshold {
		add("report_history", pointsReportHistory, "more than 2 reports against account")
	}

	if score > 100 {
		score = 100
	}

	level, action := classify(score)
	return Assessment{
		UserID:               in.UserID,
		Score:                score,
		Level:                level,
		Action:               action,
		MultiAccountDetected: multi,
		Indicators:           indicators,
	}
}

func classify(score int) (Level, Action) {
	switch {
	case score >= 70:
		return LevelCritical, ActionBlock
	case score >= 50:
		return LevelHigh, ActionReview
	case score >= 25:
		return LevelMedium, ActionFlag
	default:
		return LevelLow, ActionAllow
	}
}
