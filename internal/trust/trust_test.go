package trust

import (
	"context"
	"math/rand"
	"sync"
	"testing"
)

func TestDeltaTable(t *testing.T) {
	cases := []struct {
		event EventType
		want  int
	}{
		{EventHelpCompleted, 3},
		{EventRatingHigh, 2},
		{EventRatingNeutral, 0},
		{EventRatingLow, -5},
		{EventHelperNoShow, -10},
		{EventVerifiedReport, -15},
		{EventActiveStreak, 1},
		{EventLocationConsistency, 5},
	}
	for _, tc := range cases {
		got, err := Delta(tc.event)
		if err != nil {
			t.Fatalf("Delta(%s): unexpected error %v", tc.event, err)
		}
		if got != tc.want {
			t.Errorf("Delta(%s) = %d, want %d", tc.event, got, tc.want)
		}
	}
}

func TestUnknownEventRejected(t *testing.T) {
	if _, err := Delta("banned_for_fun"); err == nil {
		t.Fatal("expected error for unknown event type")
	}

	svc := NewService(NewMemoryStore())
	if _, err := svc.Apply(context.Background(), "usr_a", "banned_for_fun", nil); err == nil {
		t.Fatal("Apply should reject unknown event types")
	}
}

func TestApplyClamps(t *testing.T) {
	if got := Apply(98, 10); got != 100 {
		t.Errorf("Apply(98, +10) = %d, want 100", got)
	}
	if got := Apply(3, -15); got != 0 {
		t.Errorf("Apply(3, -15) = %d, want 0", got)
	}
	// Out-of-range current score is clamped, not rejected
	if got := Apply(150, 0); got != 100 {
		t.Errorf("Apply(150, 0) = %d, want 100", got)
	}
	if got := Apply(-20, 5); got != 5 {
		t.Errorf("Apply(-20, +5) = %d, want 5", got)
	}
}

// Property: no sequence of events ever pushes a score out of [0,100].
func TestScoreAlwaysBounded(t *testing.T) {
	events := []EventType{
		EventHelpCompleted, EventRatingHigh, EventRatingNeutral, EventRatingLow,
		EventHelperNoShow, EventVerifiedReport, EventActiveStreak, EventLocationConsistency,
	}
	rng := rand.New(rand.NewSource(42))

	score := DefaultScore
	for i := 0; i < 1000; i++ {
		d, err := Delta(events[rng.Intn(len(events))])
		if err != nil {
			t.Fatal(err)
		}
		score = Apply(score, d)
		if score < MinScore || score > MaxScore {
			t.Fatalf("score %d out of bounds after %d events", score, i+1)
		}
	}
}

func TestBadgeBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Badge
	}{
		{0, BadgeRestricted},
		{39, BadgeRestricted},
		{40, BadgeNeutral},
		{69, BadgeNeutral},
		{70, BadgeTrusted},
		{100, BadgeTrusted},
	}
	for _, tc := range cases {
		if got := BadgeFor(tc.score); got != tc.want {
			t.Errorf("BadgeFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCheckAccessThresholds(t *testing.T) {
	cases := []struct {
		score   int
		action  Action
		allowed bool
	}{
		{39, ActionViewEmergency, false},
		{40, ActionViewEmergency, true},
		{49, ActionTimeAccess, false},
		{50, ActionTimeAccess, true},
		{69, ActionResourceRent, false},
		{70, ActionResourceRent, true},
		{69, ActionHighRiskPost, false},
		{70, ActionHighRiskPost, true},
	}
	for _, tc := range cases {
		result, err := CheckAccess(tc.score, tc.action)
		if err != nil {
			t.Fatalf("CheckAccess(%d, %s): %v", tc.score, tc.action, err)
		}
		if result.Allowed != tc.allowed {
			t.Errorf("CheckAccess(%d, %s).Allowed = %v, want %v",
				tc.score, tc.action, result.Allowed, tc.allowed)
		}
	}

	if _, err := CheckAccess(50, "fly_to_moon"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestStreakBonusCapped(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	// 15 weekly streak events, only 10 points should land
	var rec *Record
	var err error
	for i := 0; i < 15; i++ {
		rec, err = svc.Apply(ctx, "usr_streak", EventActiveStreak, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	if rec.Score != DefaultScore+StreakBonusCap {
		t.Errorf("score = %d, want %d", rec.Score, DefaultScore+StreakBonusCap)
	}
	if rec.StreakBonusAwarded != StreakBonusCap {
		t.Errorf("streak bonus awarded = %d, want %d", rec.StreakBonusAwarded, StreakBonusCap)
	}
}

func TestLocationBonusGrantedOnce(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	rec, err := svc.Apply(ctx, "usr_loc", EventLocationConsistency, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Score != DefaultScore+5 {
		t.Errorf("score after first bonus = %d, want %d", rec.Score, DefaultScore+5)
	}

	rec, err = svc.Apply(ctx, "usr_loc", EventLocationConsistency, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Score != DefaultScore+5 {
		t.Errorf("score after second bonus = %d, want %d (one-time bonus)", rec.Score, DefaultScore+5)
	}
}

func TestExplicitDeltaOverridesTable(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	delta := -3
	rec, err := svc.Apply(ctx, "usr_exp", EventRatingLow, &delta)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Score != DefaultScore-3 {
		t.Errorf("score = %d, want %d", rec.Score, DefaultScore-3)
	}
}

// Two simultaneous feedback events for the same user must not lose an
// update (classic lost-update hazard).
func TestConcurrentApplyLosesNothing(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	// A failed version check always means another writer committed, so
	// with workers <= maxApplyAttempts no writer can exhaust its retries.
	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, "usr_conc", EventHelpCompleted, nil); err != nil {
				t.Errorf("concurrent apply: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := svc.Get(ctx, "usr_conc")
	if err != nil {
		t.Fatal(err)
	}
	want := Clamp(DefaultScore + workers*3)
	if rec.Score != want {
		t.Errorf("score after %d concurrent events = %d, want %d", workers, rec.Score, want)
	}
}

// New user receives 3 five-star ratings and completes 3 helps:
// 50 + 3*2 + 3*3 = 65, badge neutral.
func TestScenarioRatingsAndHelps(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	var rec *Record
	var err error
	for i := 0; i < 3; i++ {
		if rec, err = svc.Apply(ctx, "usr_a", EventRatingHigh, nil); err != nil {
			t.Fatal(err)
		}
		if rec, err = svc.Apply(ctx, "usr_a", EventHelpCompleted, nil); err != nil {
			t.Fatal(err)
		}
	}
	if rec.Score != 65 {
		t.Errorf("score = %d, want 65", rec.Score)
	}
	if rec.Badge() != BadgeNeutral {
		t.Errorf("badge = %s, want %s", rec.Badge(), BadgeNeutral)
	}
}

// One no-show (50→40), then a verified report (40→25): badge restricted,
// emergency access denied.
func TestScenarioNoShowThenReport(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "usr_b", EventHelperNoShow, nil); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Apply(ctx, "usr_b", EventVerifiedReport, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Score != 25 {
		t.Errorf("score = %d, want 25", rec.Score)
	}
	if rec.Badge() != BadgeRestricted {
		t.Errorf("badge = %s, want %s", rec.Badge(), BadgeRestricted)
	}

	access, err := CheckAccess(rec.Score, ActionViewEmergency)
	if err != nil {
		t.Fatal(err)
	}
	if access.Allowed {
		t.Error("restricted user should not view emergency tasks")
	}
}
