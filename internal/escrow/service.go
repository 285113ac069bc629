package escrow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/idgen"
	"github.com/sahaay-app/sahaay/internal/logging"
	"github.com/sahaay-app/sahaay/internal/metrics"
)

// AutoReleaseActor is recorded as ReleasedBy when the expiry timer, not
// the client, releases a lock.
const AutoReleaseActor = "system:auto_release"

// Service implements the escrow state machine. A per-problem mutex
// serializes in-process transitions; the store's uniqueness and
// conditional updates remain the cross-process authority.
type Service struct {
	store        Store
	problems     Problems
	trust        TrustRecorder
	restrictions Restrictions
	notifier     Notifier
	lockTTL      time.Duration
	locks        sync.Map // map[problemID]*sync.Mutex
}

// NewService creates an escrow service.
func NewService(store Store, problems Problems, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Service{
		store:    store,
		problems: problems,
		lockTTL:  lockTTL,
	}
}

// WithTrustRecorder wires the successful-help trust side effect.
func (s *Service) WithTrustRecorder(t TrustRecorder) *Service {
	s.trust = t
	return s
}

// WithRestrictions wires the restricted-account check.
func (s *Service) WithRestrictions(r Restrictions) *Service {
	s.restrictions = r
	return s
}

// WithNotifier wires party notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) problemLock(problemID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(problemID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Lock creates an escrow for a posting. The caller must be the poster,
// the posting must still be open, the amount positive, and neither party
// restricted. Exactly one lock can ever exist per posting.
func (s *Service) Lock(ctx context.Context, problemID, callerID, helperID string, amountINR int64) (*Transaction, error) {
	if problemID == "" || callerID == "" || helperID == "" {
		return nil, apperr.Validationf("problemId, callerId and helperId are required")
	}
	if amountINR <= 0 {
		return nil, apperr.Validationf("amount must be positive")
	}
	if callerID == helperID {
		return nil, apperr.Validationf("client and helper cannot be the same account")
	}

	mu := s.problemLock(problemID)
	mu.Lock()
	defer mu.Unlock()

	if s.restrictions != nil {
		for _, id := range []string{callerID, helperID} {
			restricted, err := s.restrictions.IsRestricted(ctx, id)
			if err != nil {
				return nil, err
			}
			if restricted {
				return nil, apperr.Preconditionf("account %s is restricted from escrow", id)
			}
		}
	}

	posterID, open, err := s.problems.Info(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if posterID != callerID {
		return nil, apperr.Preconditionf("only the posting's owner may lock payment")
	}
	if !open {
		return nil, apperr.Conflictf("posting already claimed")
	}

	now := time.Now()
	t := &Transaction{
		ID:           idgen.WithPrefix("esc_"),
		ProblemID:    problemID,
		ClientID:     callerID,
		HelperID:     helperID,
		AmountINR:    amountINR,
		Status:       StatusLocked,
		LockedAt:     now,
		LockExpiryAt: now.Add(s.lockTTL),
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflictf("posting already claimed")
		}
		return nil, err
	}

	// The posting was cancelled between the open check and here. The
	// fresh lock cannot stand; freeze it for admin cleanup.
	if err := s.problems.MarkInProgress(ctx, problemID, helperID); err != nil {
		t.Status = StatusDisputed
		t.DisputeReason = "posting left open state during lock"
		t.UpdatedAt = time.Now()
		if terr := s.store.Transition(ctx, t, StatusLocked); terr != nil {
			logging.L(ctx).Error("stranded escrow after lost lock race",
				"escrowId", t.ID, "error", terr)
		}
		return nil, apperr.Conflictf("posting already claimed")
	}

	s.notify(ctx, t.ClientID, "escrow_locked", "Payment locked",
		"Your payment is held safely until you confirm the help.", "normal")
	s.notify(ctx, t.HelperID, "escrow_locked", "Payment secured",
		"The client locked payment for this task. You can start.", "normal")

	metrics.EscrowsTotal.WithLabelValues(string(StatusLocked)).Inc()
	return t, nil
}

// Release pays the helper out. Only the client may release, and only
// from Locked.
func (s *Service) Release(ctx context.Context, problemID, callerID string) (*Transaction, error) {
	mu := s.problemLock(problemID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.store.GetByProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if callerID != t.ClientID {
		return nil, apperr.Preconditionf("only the client may release the payment")
	}
	if t.Status != StatusLocked {
		return nil, apperr.Preconditionf("escrow is %s, not locked", t.Status)
	}

	if err := s.finishRelease(ctx, t, callerID); err != nil {
		return nil, err
	}
	return t, nil
}

// Dispute freezes the escrow for admin resolution. Either party may
// dispute a Locked escrow; a reason is required.
func (s *Service) Dispute(ctx context.Context, problemID, callerID, reason string) (*Transaction, error) {
	if reason == "" {
		return nil, apperr.Validationf("dispute reason is required")
	}

	mu := s.problemLock(problemID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.store.GetByProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if callerID != t.ClientID && callerID != t.HelperID {
		return nil, apperr.Preconditionf("only the client or helper may dispute")
	}
	if t.Status != StatusLocked {
		return nil, apperr.Preconditionf("escrow is %s, not locked", t.Status)
	}

	t.Status = StatusDisputed
	t.DisputeReason = reason
	t.UpdatedAt = time.Now()
	if err := s.store.Transition(ctx, t, StatusLocked); err != nil {
		return nil, err
	}

	s.notify(ctx, t.ClientID, "escrow_disputed", "Payment disputed",
		"The payment is frozen until our team resolves the dispute.", "high")
	s.notify(ctx, t.HelperID, "escrow_disputed", "Payment disputed",
		"The payment is frozen until our team resolves the dispute.", "high")

	metrics.EscrowsTotal.WithLabelValues(string(StatusDisputed)).Inc()
	metrics.EscrowDuration.Observe(time.Since(t.LockedAt).Seconds())
	return t, nil
}

// AutoRelease pays the helper out after the client sat on a lock past
// its expiry. Client inaction past the deadline counts as acceptance.
func (s *Service) AutoRelease(ctx context.Context, t *Transaction) error {
	mu := s.problemLock(t.ProblemID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read: the client may have acted between listing and here.
	current, err := s.store.GetByProblem(ctx, t.ProblemID)
	if err != nil {
		return err
	}
	if current.Status != StatusLocked {
		return nil
	}
	if err := s.finishRelease(ctx, current, AutoReleaseActor); err != nil {
		return err
	}
	metrics.EscrowAutoReleasedTotal.Inc()
	return nil
}

// finishRelease commits the Locked → Released transition and its side
// effects. Caller holds the problem lock.
func (s *Service) finishRelease(ctx context.Context, t *Transaction, releasedBy string) error {
	now := time.Now()
	t.Status = StatusReleased
	t.ReleasedAt = &now
	t.ReleasedBy = releasedBy
	t.UpdatedAt = now
	if err := s.store.Transition(ctx, t, StatusLocked); err != nil {
		return err
	}

	// Side effects after the commit are best-effort: the money decision
	// is made, everything else may lag.
	if err := s.problems.Close(ctx, t.ProblemID); err != nil {
		logging.L(ctx).Warn("closing posting after release failed",
			"problemId", t.ProblemID, "error", err)
	}
	if s.trust != nil {
		if err := s.trust.RecordHelpCompleted(ctx, t.HelperID); err != nil {
			logging.L(ctx).Warn("help-completed trust event failed",
				"helperId", t.HelperID, "error", err)
		}
	}

	s.notify(ctx, t.HelperID, "escrow_released", "Payment released",
		"The client confirmed the help. The payment is yours.", "normal")

	metrics.EscrowsTotal.WithLabelValues(string(StatusReleased)).Inc()
	metrics.EscrowDuration.Observe(now.Sub(t.LockedAt).Seconds())
	return nil
}

// Get returns one transaction by id.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// GetByProblem returns the transaction for a posting.
func (s *Service) GetByProblem(ctx context.Context, problemID string) (*Transaction, error) {
	return s.store.GetByProblem(ctx, problemID)
}

// ListByUser returns transactions where the user is client or helper.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) notify(ctx context.Context, userID, typ, title, message, priority string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, typ, title, message, priority)
}
