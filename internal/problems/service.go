package problems

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/idgen"
	"github.com/sahaay-app/sahaay/internal/pagination"
	"github.com/sahaay-app/sahaay/internal/trust"
	"github.com/sahaay-app/sahaay/internal/validation"
)

// Service gates posting and viewing on trust score and drives status
// transitions for the escrow machine.
type Service struct {
	store Store
	trust *trust.Service
}

// NewService creates a problems service.
func NewService(store Store, trustSvc *trust.Service) *Service {
	return &Service{store: store, trust: trustSvc}
}

// PostInput is the data needed to open a posting.
type PostInput struct {
	Title       string
	Description string
	RiskLevel   RiskLevel
	Lat         float64
	Lng         float64
	AmountINR   int64
}

// Post opens a new posting. The poster's trust score must clear the risk
// tier's minimum.
func (s *Service) Post(ctx context.Context, posterID string, in PostInput) (*Problem, error) {
	errs := validation.Validate(
		validation.Required("title", in.Title),
		validation.ValidCoordinates("location", in.Lat, in.Lng),
	)
	if len(errs) > 0 {
		return nil, apperr.Validationf("%s", errs.Error())
	}
	if in.AmountINR < 0 {
		return nil, apperr.Validationf("amountInr: must not be negative")
	}
	tier, err := TierFor(in.RiskLevel)
	if err != nil {
		return nil, err
	}

	rec, err := s.trust.Get(ctx, posterID)
	if err != nil {
		return nil, err
	}
	if rec.Score < tier.MinTrustScore {
		return nil, apperr.Preconditionf("trust score %d below %d required for %s risk postings",
			rec.Score, tier.MinTrustScore, in.RiskLevel)
	}

	now := time.Now()
	p := &Problem{
		ID:          idgen.WithPrefix("prb_"),
		PosterID:    posterID,
		Title:       validation.SanitizeString(in.Title, 300),
		Description: validation.SanitizeString(in.Description, validation.MaxStringLength),
		RiskLevel:   in.RiskLevel,
		Status:      StatusOpen,
		Lat:         in.Lat,
		Lng:         in.Lng,
		AmountINR:   in.AmountINR,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns one posting without gating; callers that enforce viewing
// rules use View.
func (s *Service) Get(ctx context.Context, id string) (*Problem, error) {
	return s.store.Get(ctx, id)
}

// View returns a posting only when the viewer's trust score clears its
// risk tier.
func (s *Service) View(ctx context.Context, viewerID, problemID string) (*Problem, error) {
	p, err := s.store.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}
	tier, err := TierFor(p.RiskLevel)
	if err != nil {
		return nil, err
	}
	rec, err := s.trust.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if rec.Score < tier.MinTrustScore {
		return nil, apperr.Preconditionf("trust score %d below %d required to view %s risk postings",
			rec.Score, tier.MinTrustScore, p.RiskLevel)
	}
	return p, nil
}

// ListOpenFor lists open postings the viewer is allowed to see, newest
// first. An empty cursor starts from the top; the returned cursor resumes
// the walk and is empty on the last page. Tier filtering happens after the
// page is cut, so a page may come back shorter than limit even when more
// postings remain.
func (s *Service) ListOpenFor(ctx context.Context, viewerID, cursor string, limit int) ([]*Problem, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", apperr.Validationf("cursor: %v", err)
	}
	rec, err := s.trust.Get(ctx, viewerID)
	if err != nil {
		return nil, "", err
	}
	page, err := s.store.ListOpen(ctx, cur, limit+1)
	if err != nil {
		return nil, "", err
	}
	page, next, _ := pagination.ComputePage(page, limit, func(p *Problem) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	visible := make([]*Problem, 0, len(page))
	for _, p := range page {
		tier, err := TierFor(p.RiskLevel)
		if err != nil {
			continue
		}
		if rec.Score >= tier.MinTrustScore {
			visible = append(visible, p)
		}
	}
	return visible, next, nil
}

// Cancel withdraws an open posting. Only the poster may cancel, and only
// before an escrow lock moves it to in_progress.
func (s *Service) Cancel(ctx context.Context, callerID, problemID string) error {
	p, err := s.store.Get(ctx, problemID)
	if err != nil {
		return err
	}
	if p.PosterID != callerID {
		return apperr.Preconditionf("only the poster may cancel")
	}
	return s.store.Transition(ctx, problemID, StatusOpen, StatusCancelled, "")
}

// Info implements the escrow machine's problem lookup.
func (s *Service) Info(ctx context.Context, problemID string) (posterID string, open bool, err error) {
	p, err := s.store.Get(ctx, problemID)
	if err != nil {
		return "", false, err
	}
	return p.PosterID, p.Status == StatusOpen, nil
}

// MarkInProgress assigns a helper when an escrow lock succeeds.
func (s *Service) MarkInProgress(ctx context.Context, problemID, helperID string) error {
	return s.store.Transition(ctx, problemID, StatusOpen, StatusInProgress, helperID)
}

// Close closes a posting when its escrow is released.
func (s *Service) Close(ctx context.Context, problemID string) error {
	return s.store.Transition(ctx, problemID, StatusInProgress, StatusClosed, "")
}
