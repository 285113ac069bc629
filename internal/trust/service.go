package trust

import (
	"context"
	"errors"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/metrics"
	"github.com/sahaay-app/sahaay/internal/retry"
)

// ErrStaleRecord is returned by stores when a conditional update loses the
// version race. The service retries the full read-modify-write.
var ErrStaleRecord = errors.New("trust record modified concurrently")

const (
	// maxApplyAttempts bounds optimistic-concurrency retries per event.
	maxApplyAttempts = 5

	// Store calls are retried on transient failures only.
	storeRetryAttempts = 3
	storeRetryDelay    = 50 * time.Millisecond
)

// Service applies trust events through the store with an optimistic
// version check so concurrent events for one user never lose updates.
type Service struct {
	store Store
}

// NewService creates a trust service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the trust record for a user, creating the default record
// on first touch.
func (s *Service) Get(ctx context.Context, userID string) (*Record, error) {
	return s.getOrCreate(ctx, userID)
}

// Apply applies one trust event to a user's score. explicitDelta, when
// non-nil, overrides the table delta (used for rating-driven changes).
// The mutation is all-or-nothing: on any error the stored state is
// unchanged.
func (s *Service) Apply(ctx context.Context, userID string, event EventType, explicitDelta *int) (*Record, error) {
	// Validate the event up front so unknown types fail before any I/O.
	tableDelta, err := Delta(event)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		rec, err := s.getOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		delta := tableDelta
		if explicitDelta != nil {
			delta = *explicitDelta
		}

		// Bonus events carry per-user bookkeeping on the record.
		switch event {
		case EventActiveStreak:
			remaining := StreakBonusCap - rec.StreakBonusAwarded
			if remaining <= 0 {
				delta = 0
			} else if delta > remaining {
				delta = remaining
			}
			rec.StreakBonusAwarded += delta
		case EventLocationConsistency:
			if rec.LocationBonusGranted {
				delta = 0
			} else {
				rec.LocationBonusGranted = true
			}
		}

		rec.Score = Apply(rec.Score, delta)
		rec.UpdatedAt = time.Now()

		err = s.withRetry(ctx, func() error {
			return s.store.UpdateScore(ctx, rec)
		})
		if errors.Is(err, ErrStaleRecord) {
			continue // lost the version race, re-read and re-apply
		}
		if err != nil {
			return nil, err
		}

		metrics.TrustEventsTotal.WithLabelValues(string(event)).Inc()
		return rec, nil
	}

	return nil, apperr.Conflictf("trust update for %s kept losing version races", userID)
}

// CheckAccess loads the user's score and gates the action against it.
func (s *Service) CheckAccess(ctx context.Context, userID string, action Action) (AccessResult, error) {
	rec, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return AccessResult{}, err
	}
	return CheckAccess(rec.Score, action)
}

func (s *Service) getOrCreate(ctx context.Context, userID string) (*Record, error) {
	var rec *Record
	err := s.withRetry(ctx, func() error {
		var err error
		rec, err = s.store.Get(ctx, userID)
		return err
	})
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	fresh := &Record{
		UserID:    userID,
		Score:     DefaultScore,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	err = s.withRetry(ctx, func() error {
		return s.store.Create(ctx, fresh)
	})
	if errors.Is(err, apperr.ErrConflict) {
		// Another request created it first; use theirs.
		return s.store.Get(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// withRetry retries fn on transient store errors only; everything else
// is permanent.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, storeRetryAttempts, storeRetryDelay, func() error {
		err := fn()
		if err != nil && !apperr.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
}
