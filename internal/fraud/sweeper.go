package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sahaay-app/sahaay/internal/idgen"
)

const sweepBatchSize = 100

// Sweeper periodically hunts for multi-account rings: for accounts that
// are flagged, low-trust, or on a no-show streak, it looks up other
// accounts on the same device fingerprint and marks both sides suspected.
// Candidates stay in the candidate set once flagged, so a link that is
// already on file produces no new audit signal on later passes.
type Sweeper struct {
	directory Directory
	store     Store
	interval  time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// NewSweeper creates a multi-account sweep job.
func NewSweeper(directory Directory, store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		directory: directory,
		store:     store,
		interval:  interval,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in fraud sweeper", "panic", fmt.Sprint(r))
		}
	}()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Warn("fraud sweep failed", "error", err)
	}
}

// Sweep runs one pass and returns how many accounts were newly marked.
// Exported so admin tooling can trigger it on demand.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.directory.SweepCandidates(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, candidate := range candidates {
		if candidate.DeviceFingerprint == "" {
			continue
		}

		peers, err := s.directory.DevicePeers(ctx, candidate.DeviceFingerprint, candidate.UserID)
		if err != nil {
			s.logger.Warn("device peer lookup failed",
				"userId", candidate.UserID, "error", err)
			continue
		}
		if len(peers) == 0 {
			continue
		}

		changed, err := s.directory.MarkSuspectedMultiAccount(ctx, candidate.UserID, peers)
		if err != nil {
			s.logger.Warn("marking suspect failed",
				"userId", candidate.UserID, "error", err)
			continue
		}
		newLink := changed
		if changed {
			marked++
		}
		for _, peer := range peers {
			peerChanged, err := s.directory.MarkSuspectedMultiAccount(ctx, peer, []string{candidate.UserID})
			if err != nil {
				s.logger.Warn("marking linked suspect failed",
					"userId", peer, "error", err)
				continue
			}
			if peerChanged {
				marked++
				newLink = true
			}
		}

		// Links already on file were announced on the pass that found
		// them; repeating the signal would just pad the audit trail.
		if !newLink {
			continue
		}

		if s.store != nil {
			sig := &Signal{
				ID:          idgen.WithPrefix("sig_"),
				UserID:      candidate.UserID,
				Type:        "multi_account",
				Severity:    "high",
				Description: fmt.Sprintf("device fingerprint shared with %d account(s)", len(peers)),
				CreatedAt:   time.Now(),
			}
			if err := s.store.RecordSignal(ctx, sig); err != nil {
				s.logger.Warn("sweep signal record failed",
					"userId", candidate.UserID, "error", err)
			}
		}

		s.logger.Info("multi-account link detected",
			"userId", candidate.UserID, "peers", len(peers))
	}
	return marked, nil
}
