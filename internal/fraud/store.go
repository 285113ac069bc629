package fraud

import (
	"context"
	"time"
)

// Signal is a persisted evidence unit (GPS flags, sweep findings) kept
// for admin replay.
type Signal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is the audit trail for assessments and signals. Writes are
// best-effort from the aggregator's point of view; reads back the trail
// for admin review.
type Store interface {
	RecordAssessment(ctx context.Context, a *Assessment) error
	ListAssessments(ctx context.Context, userID string, limit int) ([]*Assessment, error)
	RecordSignal(ctx context.Context, s *Signal) error
	ListSignals(ctx context.Context, userID string, limit int) ([]*Signal, error)
}
