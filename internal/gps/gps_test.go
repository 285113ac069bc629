package gps

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

// walkingTrail builds n samples moving ~1km north per hour.
func walkingTrail(n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Lat:       12.9716 + float64(i)*0.009,
			Lng:       77.5946,
			Accuracy:  10,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return samples
}

func TestHaversineKnownDistance(t *testing.T) {
	// Bengaluru to Chennai, roughly 290km.
	d := Haversine(12.9716, 77.5946, 13.0827, 80.2707)
	if d < 280 || d > 300 {
		t.Errorf("Haversine = %.1f km, want ~290", d)
	}

	if d := Haversine(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Errorf("zero-distance = %f, want 0", d)
	}
}

func TestEvaluateCleanSample(t *testing.T) {
	history := walkingTrail(3)
	next := Sample{
		Lat:       12.9716 + 3*0.009,
		Lng:       77.5946,
		Accuracy:  12,
		Timestamp: base.Add(3 * time.Hour),
	}

	eval := Evaluate(next, history)
	if !eval.Valid {
		t.Errorf("clean sample invalid: %+v", eval)
	}
	if eval.Mocked {
		t.Error("clean sample marked mocked")
	}
	if eval.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", eval.Confidence)
	}
}

func TestEvaluateMockFlag(t *testing.T) {
	eval := Evaluate(Sample{Lat: 12.9716, Lng: 77.5946, MockFlag: true, Timestamp: base}, nil)
	if !eval.Mocked {
		t.Error("mock flag should mark sample mocked")
	}
	if eval.Valid {
		t.Error("mocked sample should be invalid")
	}
	if math.Abs(eval.Confidence-0.1) > 1e-9 {
		t.Errorf("confidence = %f, want 0.1", eval.Confidence)
	}
}

// Two samples 200km apart 60 seconds apart: a teleport.
func TestEvaluateTeleport(t *testing.T) {
	history := []Sample{{Lat: 12.9716, Lng: 77.5946, Accuracy: 10, Timestamp: base}}
	next := Sample{
		Lat:       14.7701, // ~200km north
		Lng:       77.5946,
		Accuracy:  10,
		Timestamp: base.Add(60 * time.Second),
	}

	eval := Evaluate(next, history)
	if !eval.Mocked {
		t.Error("teleport should mark sample mocked")
	}
	if eval.Valid {
		t.Error("teleport sample should be invalid")
	}
}

func TestEvaluateSuspiciousAccuracy(t *testing.T) {
	eval := Evaluate(Sample{Lat: 12.9716, Lng: 77.5946, Accuracy: 1, Timestamp: base}, nil)
	if eval.Mocked {
		t.Error("precise accuracy alone should not mark mocked")
	}
	// 1.0 * 0.5 is not above the validity bar.
	if eval.Valid {
		t.Error("suspiciously precise sample should be invalid")
	}

	// Unreported accuracy (zero) is not penalized.
	eval = Evaluate(Sample{Lat: 12.9716, Lng: 77.5946, Timestamp: base}, nil)
	if !eval.Valid {
		t.Errorf("unreported accuracy should pass: %+v", eval)
	}
}

func TestEvaluateLowPrecisionCoordinates(t *testing.T) {
	eval := Evaluate(Sample{Lat: 12.97, Lng: 77.59, Accuracy: 10, Timestamp: base}, nil)
	if math.Abs(eval.Confidence-0.7) > 1e-9 {
		t.Errorf("confidence = %f, want 0.7", eval.Confidence)
	}
	if !eval.Valid {
		t.Error("low precision alone should stay above the validity bar")
	}

	// Full precision on one axis is enough to pass the check.
	eval = Evaluate(Sample{Lat: 12.97, Lng: 77.5946, Accuracy: 10, Timestamp: base}, nil)
	if eval.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", eval.Confidence)
	}
}

func TestEvaluateJumpOutsidePattern(t *testing.T) {
	history := walkingTrail(5) // 4 hops of ~1km each
	jump := Sample{
		Lat:       history[4].Lat + 0.135, // ~15km, 15x the mean hop
		Lng:       77.5946,
		Accuracy:  10,
		Timestamp: history[4].Timestamp.Add(time.Hour),
	}

	eval := Evaluate(jump, history)
	if eval.Mocked {
		t.Error("pattern jump alone should not mark mocked")
	}
	if eval.Valid {
		t.Errorf("15x jump should be invalid, confidence %f", eval.Confidence)
	}
	if math.Abs(eval.Confidence-0.3) > 1e-9 {
		t.Errorf("confidence = %f, want 0.3", eval.Confidence)
	}
}

func TestConsistencyScoreStationary(t *testing.T) {
	samples := make([]Sample, 6)
	for i := range samples {
		samples[i] = Sample{Lat: 12.9716, Lng: 77.5946, Timestamp: base.Add(time.Duration(i) * time.Hour)}
	}
	if score := ConsistencyScore(samples); score != 100 {
		t.Errorf("stationary score = %d, want 100", score)
	}
}

func TestConsistencyScorePenalizesSpeed(t *testing.T) {
	// Five samples ~50km apart, 6 minutes apart: 500 km/h per hop.
	samples := make([]Sample, 5)
	for i := range samples {
		samples[i] = Sample{
			Lat:       12.9716 + float64(i)*0.45,
			Lng:       77.5946,
			Timestamp: base.Add(time.Duration(i) * 6 * time.Minute),
		}
	}
	score := ConsistencyScore(samples)
	// Four hops each above 300 km/h: 100 * 0.5^4.
	if score != 6 {
		t.Errorf("score = %d, want 6", score)
	}
}

func TestMemoryHistoryBounded(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()

	for i := 0; i < HistoryLimit+20; i++ {
		s := Sample{Lat: 12.9716, Lng: 77.5946, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := h.Append(ctx, "usr_a", s); err != nil {
			t.Fatal(err)
		}
	}

	samples, err := h.Recent(ctx, "usr_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != HistoryLimit {
		t.Errorf("history length = %d, want %d", len(samples), HistoryLimit)
	}
	// Oldest retained sample is the 21st appended.
	if got := samples[0].Timestamp; !got.Equal(base.Add(20 * time.Minute)) {
		t.Errorf("oldest sample at %v, want %v", got, base.Add(20*time.Minute))
	}
}

type captureSink struct {
	mu    sync.Mutex
	flags []Flag
}

func (s *captureSink) Emit(_ context.Context, f Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = append(s.flags, f)
}

func (s *captureSink) byType(ft FlagType) []Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Flag
	for _, f := range s.flags {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

type fixedHome struct {
	lat, lng float64
	ok       bool
}

func (h fixedHome) Home(_ context.Context, _ string) (float64, float64, bool, error) {
	return h.lat, h.lng, h.ok, nil
}

func TestCheckerEmitsMockFlag(t *testing.T) {
	sink := &captureSink{}
	checker := NewChecker(NewMemoryHistory(), nil, sink)

	eval, err := checker.Check(context.Background(), "usr_a",
		Sample{Lat: 12.9716, Lng: 77.5946, MockFlag: true, Timestamp: base})
	if err != nil {
		t.Fatal(err)
	}
	if !eval.Mocked {
		t.Fatal("expected mocked evaluation")
	}

	flags := sink.byType(FlagMockLocation)
	if len(flags) != 1 {
		t.Fatalf("mock flags emitted = %d, want 1", len(flags))
	}
	if flags[0].Severity != SeverityCritical {
		t.Errorf("severity = %s, want %s", flags[0].Severity, SeverityCritical)
	}
}

func TestCheckerEmitsCityChange(t *testing.T) {
	sink := &captureSink{}
	home := fixedHome{lat: 12.9716, lng: 77.5946, ok: true}
	checker := NewChecker(NewMemoryHistory(), home, sink)

	// Chennai, ~290km from the Bengaluru home point.
	_, err := checker.Check(context.Background(), "usr_a",
		Sample{Lat: 13.0827, Lng: 80.2707, Accuracy: 10, Timestamp: base})
	if err != nil {
		t.Fatal(err)
	}

	flags := sink.byType(FlagCityChange)
	if len(flags) != 1 {
		t.Fatalf("city change flags = %d, want 1", len(flags))
	}
	if flags[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want %s", flags[0].Severity, SeverityMedium)
	}
}

func TestCheckerEmitsInconsistentPattern(t *testing.T) {
	sink := &captureSink{}
	checker := NewChecker(NewMemoryHistory(), nil, sink)
	ctx := context.Background()

	// Feed a trail of implausibly fast hops so the consistency score
	// collapses once enough samples accumulate.
	for i := 0; i < 6; i++ {
		s := Sample{
			Lat:       12.9716 + float64(i)*0.45,
			Lng:       77.5946,
			Accuracy:  10,
			Timestamp: base.Add(time.Duration(i) * 6 * time.Minute),
		}
		if _, err := checker.Check(ctx, "usr_a", s); err != nil {
			t.Fatal(err)
		}
	}

	if flags := sink.byType(FlagInconsistentPattern); len(flags) == 0 {
		t.Error("expected inconsistent pattern flag")
	}
}

func TestCheckerRejectsBadCoordinates(t *testing.T) {
	checker := NewChecker(NewMemoryHistory(), nil, nil)

	_, err := checker.Check(context.Background(), "usr_a",
		Sample{Lat: 123.0, Lng: 77.5946, Timestamp: base})
	if err == nil {
		t.Fatal("expected validation error for out-of-range latitude")
	}
}
