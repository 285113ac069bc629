package gps

import (
	"context"
	"time"
)

// FlagType identifies what a location flag is evidence of.
type FlagType string

const (
	FlagMockLocation        FlagType = "mock_location"
	FlagCityChange          FlagType = "city_change"
	FlagInconsistentPattern FlagType = "inconsistent_pattern"
)

// Severity orders flags for the fraud aggregator and admin review.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Flag is a single piece of location evidence emitted for downstream
// consumption.
type Flag struct {
	UserID      string    `json:"userId"`
	Type        FlagType  `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FlagSink receives emitted flags. The fraud aggregator implements this;
// delivery is best-effort and must not block the ping path.
type FlagSink interface {
	Emit(ctx context.Context, flag Flag)
}
