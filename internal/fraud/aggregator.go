package fraud

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/gps"
	"github.com/sahaay-app/sahaay/internal/idgen"
	"github.com/sahaay-app/sahaay/internal/logging"
	"github.com/sahaay-app/sahaay/internal/metrics"
)

// Profile is the slice of a user's account the aggregator needs.
type Profile struct {
	UserID            string
	TrustScore        int
	CreatedAt         time.Time
	NoShowCount       int
	ReportCount       int
	DeviceFingerprint string
	LastIP            string
	UPIID             string
	Flagged           bool
}

// Directory answers linkage and profile queries. The users store
// implements it.
type Directory interface {
	Profile(ctx context.Context, userID string) (*Profile, error)

	// DevicePeers returns other user ids sharing a device fingerprint.
	DevicePeers(ctx context.Context, fingerprint, excludeUserID string) ([]string, error)

	// IPAccountCount returns how many distinct accounts the IP has been
	// seen on, including the caller's own.
	IPAccountCount(ctx context.Context, ip string) (int, error)

	// UPIBoundElsewhere reports whether the UPI id belongs to a
	// different account.
	UPIBoundElsewhere(ctx context.Context, upi, excludeUserID string) (bool, error)

	// MarkFlagged records that a critical signal landed on the account.
	MarkFlagged(ctx context.Context, userID string) error

	// MarkSuspectedMultiAccount stores the linked-account set found by
	// the sweep. It reports whether any new link was recorded so the
	// caller can skip audit events for links already on file.
	MarkSuspectedMultiAccount(ctx context.Context, userID string, linked []string) (bool, error)

	// SweepCandidates lists accounts worth a multi-account sweep:
	// flagged, low-trust, or on a no-show streak.
	SweepCandidates(ctx context.Context, limit int) ([]*Profile, error)
}

// Aggregator gathers evidence through the directory and scores it.
type Aggregator struct {
	directory Directory
	store     Store
}

// NewAggregator creates a fraud aggregator. store may be nil; assessments
// are then not recorded.
func NewAggregator(directory Directory, store Store) *Aggregator {
	return &Aggregator{directory: directory, store: store}
}

// Assess evaluates one user. device, ip, and upi override the profile's
// stored values when non-empty (the request's own evidence wins over
// stale profile data).
func (a *Aggregator) Assess(ctx context.Context, userID, device, ip, upi string) (*Assessment, error) {
	profile, err := a.directory.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if device == "" {
		device = profile.DeviceFingerprint
	}
	if ip == "" {
		ip = profile.LastIP
	}
	if upi == "" {
		upi = profile.UPIID
	}

	in := Input{
		UserID:      userID,
		TrustScore:  profile.TrustScore,
		AccountAge:  time.Since(profile.CreatedAt),
		NoShowCount: profile.NoShowCount,
		ReportCount: profile.ReportCount,
	}

	if device != "" {
		peers, err := a.directory.DevicePeers(ctx, device, userID)
		if err != nil {
			return nil, apperr.Transientf("device linkage lookup: %v", err)
		}
		in.DevicePeers = len(peers)
	}
	if ip != "" {
		count, err := a.directory.IPAccountCount(ctx, ip)
		if err != nil {
			return nil, apperr.Transientf("ip linkage lookup: %v", err)
		}
		in.IPAccounts = count
	}
	if upi != "" {
		dup, err := a.directory.UPIBoundElsewhere(ctx, upi, userID)
		if err != nil {
			return nil, apperr.Transientf("upi linkage lookup: %v", err)
		}
		in.DuplicateUPI = dup
	}

	assessment := Evaluate(in)
	assessment.ID = idgen.WithPrefix("aud_")
	assessment.AssessedAt = time.Now()

	// Best-effort audit trail, off the request path.
	if a.store != nil {
		recorded := assessment
		go func() {
			if err := a.store.RecordAssessment(context.Background(), &recorded); err != nil {
				logging.L(ctx).Warn("assessment record failed",
					"userId", userID, "error", err)
			}
		}()
	}

	metrics.FraudAssessmentsTotal.WithLabelValues(string(assessment.Action)).Inc()
	return &assessment, nil
}

// History lists recorded assessments for a user, newest first.
func (a *Aggregator) History(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.ListAssessments(ctx, userID, limit)
}

// Emit receives location flags from the GPS checker. Signals are recorded
// for audit; critical ones also flag the account for the sweep.
func (a *Aggregator) Emit(ctx context.Context, flag gps.Flag) {
	if a.store != nil {
		sig := &Signal{
			ID:          idgen.WithPrefix("sig_"),
			UserID:      flag.UserID,
			Type:        string(flag.Type),
			Severity:    string(flag.Severity),
			Description: flag.Description,
			CreatedAt:   flag.CreatedAt,
		}
		if err := a.store.RecordSignal(ctx, sig); err != nil {
			logging.L(ctx).Warn("signal record failed",
				"userId", flag.UserID, "type", flag.Type, "error", err)
		}
	}

	if flag.Severity == gps.SeverityCritical {
		if err := a.directory.MarkFlagged(ctx, flag.UserID); err != nil {
			logging.L(ctx).Warn("flagging account failed",
				"userId", flag.UserID, "error", err)
		}
	}
}

// Signals lists recorded signals for a user, newest first.
func (a *Aggregator) Signals(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.ListSignals(ctx, userID, limit)
}

var _ gps.FlagSink = (*Aggregator)(nil)
