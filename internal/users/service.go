package users

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/fraud"
	"github.com/sahaay-app/sahaay/internal/idgen"
	"github.com/sahaay-app/sahaay/internal/trust"
	"github.com/sahaay-app/sahaay/internal/validation"
)

// Service owns account lifecycle and exposes the views other engines
// need: fraud's directory, the GPS checker's home lookup, and escrow's
// restriction check.
type Service struct {
	store Store
	trust *trust.Service
}

// NewService creates a users service.
func NewService(store Store, trustSvc *trust.Service) *Service {
	return &Service{store: store, trust: trustSvc}
}

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Name              string
	Phone             string
	UPIID             string
	DeviceFingerprint string
	IP                string
	HomeLat           *float64
	HomeLng           *float64
}

// Register creates a new account. The trust record is created lazily on
// first score read, so registration touches only the users store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	errs := validation.Validate(
		validation.Required("name", in.Name),
		validation.Required("phone", in.Phone),
		validation.ValidPhone("phone", in.Phone),
		validation.ValidUPI("upiId", in.UPIID),
	)
	if len(errs) > 0 {
		return nil, apperr.Validationf("%s", errs.Error())
	}
	if in.HomeLat != nil && in.HomeLng != nil {
		if !validation.IsValidCoordinate(*in.HomeLat, *in.HomeLng) {
			return nil, apperr.Validationf("home: must be valid lat/lng coordinates")
		}
	}

	if in.UPIID != "" {
		owner, err := s.store.UPIOwner(ctx, in.UPIID)
		if err != nil {
			return nil, err
		}
		if owner != "" {
			return nil, apperr.Conflictf("UPI id already registered")
		}
	}

	now := time.Now()
	u := &User{
		ID:                idgen.WithPrefix("usr_"),
		Name:              validation.SanitizeString(in.Name, 200),
		Phone:             in.Phone,
		UPIID:             in.UPIID,
		DeviceFingerprint: in.DeviceFingerprint,
		LastIP:            in.IP,
		HomeLat:           in.HomeLat,
		HomeLng:           in.HomeLng,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.Get(ctx, id)
}

// TouchIP records the IP an authenticated request came from so the fraud
// aggregator sees fresh linkage data. Best-effort.
func (s *Service) TouchIP(ctx context.Context, id, ip string) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.LastIP == ip {
		return nil
	}
	u.LastIP = ip
	u.UpdatedAt = time.Now()
	return s.store.Update(ctx, u)
}

// RecordHelp bumps the helper's success counter.
func (s *Service) RecordHelp(ctx context.Context, id string) error {
	return s.store.Increment(ctx, id, CounterHelp)
}

// RecordHelpCompleted bumps the success counter and credits the trust
// score. Escrow release calls this for the helper.
func (s *Service) RecordHelpCompleted(ctx context.Context, id string) error {
	if err := s.store.Increment(ctx, id, CounterHelp); err != nil {
		return err
	}
	_, err := s.trust.Apply(ctx, id, trust.EventHelpCompleted, nil)
	return err
}

// RecordNoShow bumps the no-show counter.
func (s *Service) RecordNoShow(ctx context.Context, id string) error {
	return s.store.Increment(ctx, id, CounterNoShow)
}

// RecordReport bumps the reports-against counter.
func (s *Service) RecordReport(ctx context.Context, id string) error {
	return s.store.Increment(ctx, id, CounterReport)
}

// SetRestricted toggles the account restriction flag (admin action, or a
// Block-level fraud verdict applied by the admin collaborator).
func (s *Service) SetRestricted(ctx context.Context, id string, restricted bool) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	u.Restricted = restricted
	u.UpdatedAt = time.Now()
	return s.store.Update(ctx, u)
}

// IsRestricted reports whether an account may not enter new escrows:
// either explicitly restricted or holding a restricted trust badge.
func (s *Service) IsRestricted(ctx context.Context, id string) (bool, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if u.Restricted {
		return true, nil
	}
	rec, err := s.trust.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.Badge() == trust.BadgeRestricted, nil
}

// Home implements the GPS checker's home lookup.
func (s *Service) Home(ctx context.Context, userID string) (float64, float64, bool, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return 0, 0, false, err
	}
	if u.HomeLat == nil || u.HomeLng == nil {
		return 0, 0, false, nil
	}
	return *u.HomeLat, *u.HomeLng, true, nil
}

// Profile implements fraud.Directory.
func (s *Service) Profile(ctx context.Context, userID string) (*fraud.Profile, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := s.trust.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &fraud.Profile{
		UserID:            u.ID,
		TrustScore:        rec.Score,
		CreatedAt:         u.CreatedAt,
		NoShowCount:       u.NoShowCount,
		ReportCount:       u.ReportCount,
		DeviceFingerprint: u.DeviceFingerprint,
		LastIP:            u.LastIP,
		UPIID:             u.UPIID,
		Flagged:           u.Flagged,
	}, nil
}

// DevicePeers implements fraud.Directory.
func (s *Service) DevicePeers(ctx context.Context, fingerprint, excludeUserID string) ([]string, error) {
	ids, err := s.store.ByDevice(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != excludeUserID {
			out = append(out, id)
		}
	}
	return out, nil
}

// IPAccountCount implements fraud.Directory.
func (s *Service) IPAccountCount(ctx context.Context, ip string) (int, error) {
	return s.store.CountByIP(ctx, ip)
}

// UPIBoundElsewhere implements fraud.Directory.
func (s *Service) UPIBoundElsewhere(ctx context.Context, upi, excludeUserID string) (bool, error) {
	owner, err := s.store.UPIOwner(ctx, upi)
	if err != nil {
		return false, err
	}
	return owner != "" && owner != excludeUserID, nil
}

// MarkFlagged implements fraud.Directory.
func (s *Service) MarkFlagged(ctx context.Context, userID string) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Flagged {
		return nil
	}
	u.Flagged = true
	u.UpdatedAt = time.Now()
	return s.store.Update(ctx, u)
}

// MarkSuspectedMultiAccount implements fraud.Directory. The linked set
// accumulates; re-marking an existing link reports no change so the
// sweep does not pile up duplicate audit events.
func (s *Service) MarkSuspectedMultiAccount(ctx context.Context, userID string, linked []string) (bool, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	existing := make(map[string]bool, len(u.LinkedAccounts))
	for _, id := range u.LinkedAccounts {
		existing[id] = true
	}
	changed := !u.SuspectedMultiAccount
	u.SuspectedMultiAccount = true
	for _, id := range linked {
		if !existing[id] {
			u.LinkedAccounts = append(u.LinkedAccounts, id)
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	u.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

// SweepCandidates implements fraud.Directory.
func (s *Service) SweepCandidates(ctx context.Context, limit int) ([]*fraud.Profile, error) {
	candidates, err := s.store.SweepCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*fraud.Profile, 0, len(candidates))
	for _, u := range candidates {
		out = append(out, &fraud.Profile{
			UserID:            u.ID,
			CreatedAt:         u.CreatedAt,
			NoShowCount:       u.NoShowCount,
			ReportCount:       u.ReportCount,
			DeviceFingerprint: u.DeviceFingerprint,
			LastIP:            u.LastIP,
			UPIID:             u.UPIID,
			Flagged:           u.Flagged,
		})
	}
	return out, nil
}

var _ fraud.Directory = (*Service)(nil)
