// Package escrow holds a client's payment for one help posting until the
// help is delivered or disputed.
//
// Flow:
//  1. Client picks a helper and locks the amount → posting goes in_progress
//  2. Client releases → helper is paid, posting closes, trust +3
//  3. Either party disputes → funds frozen for admin resolution
//  4. Client goes silent past lock expiry → auto-released to the helper
//
// Locked is the only non-terminal state. Records are never deleted; the
// trail is the audit log.
package escrow

import (
	"context"
	"time"
)

// Status represents the state of an escrow transaction.
type Status string

const (
	StatusLocked   Status = "locked"
	StatusReleased Status = "released"
	StatusDisputed Status = "disputed"
)

// DefaultLockTTL is how long a lock holds before auto-release.
const DefaultLockTTL = 24 * time.Hour

// Transaction represents funds held for one posting. ProblemID is unique
// across all transactions, terminal ones included.
type Transaction struct {
	ID            string     `json:"id"`
	ProblemID     string     `json:"problemId"`
	ClientID      string     `json:"clientId"`
	HelperID      string     `json:"helperId"`
	AmountINR     int64      `json:"amountInr"` // rupees
	Status        Status     `json:"status"`
	LockedAt      time.Time  `json:"lockedAt"`
	LockExpiryAt  time.Time  `json:"lockExpiryAt"`
	ReleasedAt    *time.Time `json:"releasedAt,omitempty"`
	ReleasedBy    string     `json:"releasedBy,omitempty"`
	DisputeReason string     `json:"disputeReason,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsTerminal returns true once the transaction left Locked.
func (t *Transaction) IsTerminal() bool {
	return t.Status != StatusLocked
}

// Store persists escrow transactions.
//
// Create must enforce uniqueness on ProblemID; the store's guarantee is
// the authority against two racing locks, not any in-process lock.
// Transition must be conditional on the expected current status.
type Store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByProblem(ctx context.Context, problemID string) (*Transaction, error)
	Transition(ctx context.Context, t *Transaction, from Status) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)
}

// Problems abstracts the posting collaborator so escrow doesn't import
// the problems package.
type Problems interface {
	// Info returns the poster and whether the posting is still open.
	Info(ctx context.Context, problemID string) (posterID string, open bool, err error)
	MarkInProgress(ctx context.Context, problemID, helperID string) error
	Close(ctx context.Context, problemID string) error
}

// TrustRecorder applies the successful-help trust delta and counters.
type TrustRecorder interface {
	RecordHelpCompleted(ctx context.Context, helperID string) error
}

// Restrictions blocks restricted accounts from entering new escrows.
type Restrictions interface {
	IsRestricted(ctx context.Context, userID string) (bool, error)
}

// Notifier delivers fire-and-forget notifications to both parties.
type Notifier interface {
	Notify(ctx context.Context, userID, typ, title, message, priority string)
}
