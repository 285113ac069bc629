package gps

import (
	"context"
	"fmt"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/logging"
	"github.com/sahaay-app/sahaay/internal/metrics"
	"github.com/sahaay-app/sahaay/internal/syncutil"
)

// cityChangeKm is the distance from the stored home point past which a
// ping is treated as a city change.
const cityChangeKm = 100.0

// inconsistentPatternThreshold flags a trail whose consistency score has
// dropped below this value across at least minPatternSamples samples.
const (
	inconsistentPatternThreshold = 30
	minPatternSamples            = 5
)

// HomeProvider resolves a user's stored home coordinates. ok is false
// when the user has no home point on file.
type HomeProvider interface {
	Home(ctx context.Context, userID string) (lat, lng float64, ok bool, err error)
}

// Checker runs the full ping pipeline: evaluate against history, record
// the sample, and emit flags for the fraud aggregator.
type Checker struct {
	history History
	homes   HomeProvider
	sink    FlagSink

	// locks serializes pings per user so two concurrent pings cannot
	// both evaluate against the same stale trail.
	locks syncutil.ShardedMutex
}

// NewChecker creates a checker over the given history store. homes and
// sink may be nil; the corresponding checks and emissions are skipped.
func NewChecker(history History, homes HomeProvider, sink FlagSink) *Checker {
	return &Checker{history: history, homes: homes, sink: sink}
}

// Check evaluates one ping. The sample is recorded even when it fails
// validation so spoof attempts stay visible in the trail.
func (c *Checker) Check(ctx context.Context, userID string, sample Sample) (Evaluation, error) {
	if err := validateSample(sample); err != nil {
		return Evaluation{}, err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	unlock := c.locks.Lock(userID)
	defer unlock()

	history, err := c.history.Recent(ctx, userID)
	if err != nil {
		return Evaluation{}, apperr.Transientf("load location history: %v", err)
	}

	eval := Evaluate(sample, history)

	// Best-effort append; losing one sample is tolerable, a failed
	// evaluation is not.
	if err := c.history.Append(ctx, userID, sample); err != nil {
		logging.L(ctx).Warn("location sample append failed",
			"userId", userID, "error", err)
	}

	c.emitFlags(ctx, userID, sample, eval, append(history, sample))

	metrics.GPSEvaluationsTotal.WithLabelValues(verdictLabel(eval)).Inc()
	return eval, nil
}

// Consistency scores the user's current trail 0..100.
func (c *Checker) Consistency(ctx context.Context, userID string) (int, error) {
	history, err := c.history.Recent(ctx, userID)
	if err != nil {
		return 0, apperr.Transientf("load location history: %v", err)
	}
	return ConsistencyScore(history), nil
}

func (c *Checker) emitFlags(ctx context.Context, userID string, sample Sample, eval Evaluation, history []Sample) {
	if c.sink == nil {
		return
	}
	now := time.Now()

	if eval.Mocked {
		c.sink.Emit(ctx, Flag{
			UserID:      userID,
			Type:        FlagMockLocation,
			Severity:    SeverityCritical,
			Description: "location reading flagged as mocked",
			CreatedAt:   now,
		})
	}

	if c.homes != nil {
		homeLat, homeLng, ok, err := c.homes.Home(ctx, userID)
		if err != nil {
			logging.L(ctx).Warn("home lookup failed", "userId", userID, "error", err)
		} else if ok {
			if dist := Haversine(homeLat, homeLng, sample.Lat, sample.Lng); dist > cityChangeKm {
				c.sink.Emit(ctx, Flag{
					UserID:      userID,
					Type:        FlagCityChange,
					Severity:    SeverityMedium,
					Description: fmt.Sprintf("ping %.0f km from home location", dist),
					CreatedAt:   now,
				})
			}
		}
	}

	if len(history) >= minPatternSamples {
		if score := ConsistencyScore(history); score < inconsistentPatternThreshold {
			c.sink.Emit(ctx, Flag{
				UserID:      userID,
				Type:        FlagInconsistentPattern,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("movement consistency %d over %d samples", score, len(history)),
				CreatedAt:   now,
			})
		}
	}
}

func validateSample(s Sample) error {
	if s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
		return apperr.Validationf("coordinates out of range")
	}
	if s.Accuracy < 0 {
		return apperr.Validationf("accuracy cannot be negative")
	}
	return nil
}

func verdictLabel(eval Evaluation) string {
	switch {
	case eval.Mocked:
		return "mocked"
	case !eval.Valid:
		return "invalid"
	default:
		return "valid"
	}
}
