package fraud

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cleanInput() Input {
	return Input{
		UserID:     "usr_a",
		TrustScore: 50,
		AccountAge: 30 * 24 * time.Hour,
	}
}

func TestEvaluateCleanUser(t *testing.T) {
	a := Evaluate(cleanInput())
	if a.Score != 0 {
		t.Errorf("score = %d, want 0", a.Score)
	}
	if a.Level != LevelLow || a.Action != ActionAllow {
		t.Errorf("level/action = %s/%s, want low/allow", a.Level, a.Action)
	}
	if a.MultiAccountDetected {
		t.Error("clean user should not be multi-account")
	}
	if len(a.Indicators) != 0 {
		t.Errorf("indicators = %d, want 0", len(a.Indicators))
	}
}

func TestEvaluateSharedDevice(t *testing.T) {
	in := cleanInput()
	in.DevicePeers = 1

	a := Evaluate(in)
	if a.Score != 40 {
		t.Errorf("score = %d, want 40", a.Score)
	}
	if !a.MultiAccountDetected {
		t.Error("shared device should set multiAccountDetected")
	}
	if a.Level != LevelMedium || a.Action != ActionFlag {
		t.Errorf("level/action = %s/%s, want medium/flag", a.Level, a.Action)
	}
}

func TestEvaluateSharedIPTiers(t *testing.T) {
	in := cleanInput()
	in.IPAccounts = 2
	if a := Evaluate(in); a.Score != 0 {
		t.Errorf("2 accounts on IP: score = %d, want 0", a.Score)
	}

	in.IPAccounts = 3
	a := Evaluate(in)
	if a.Score != 20 {
		t.Errorf("3 accounts on IP: score = %d, want 20", a.Score)
	}
	if a.MultiAccountDetected {
		t.Error("3 accounts on IP alone should not set multiAccountDetected")
	}

	in.IPAccounts = 5
	a = Evaluate(in)
	if a.Score != 30 {
		t.Errorf("5 accounts on IP: score = %d, want 30", a.Score)
	}
	if !a.MultiAccountDetected {
		t.Error("5 accounts on IP should set multiAccountDetected")
	}
}

func TestEvaluateBehavioralChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
		want   int
	}{
		{"duplicate upi", func(in *Input) { in.DuplicateUPI = true }, 25},
		{"low trust", func(in *Input) { in.TrustScore = 29 }, 20},
		{"trust at boundary", func(in *Input) { in.TrustScore = 30 }, 0},
		{"new account", func(in *Input) { in.AccountAge = 12 * time.Hour }, 15},
		{"no-show streak", func(in *Input) { in.NoShowCount = 4 }, 15},
		{"no-show at boundary", func(in *Input) { in.NoShowCount = 3 }, 0},
		{"report history", func(in *Input) { in.ReportCount = 3 }, 15},
		{"reports at boundary", func(in *Input) { in.ReportCount = 2 }, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := cleanInput()
			tc.mutate(&in)
			if a := Evaluate(in); a.Score != tc.want {
				t.Errorf("score = %d, want %d", a.Score, tc.want)
			}
		})
	}
}

func TestEvaluateThresholds(t *testing.T) {
	// device (40) + duplicate upi (25) = 65: high/review.
	in := cleanInput()
	in.DevicePeers = 1
	in.DuplicateUPI = true
	a := Evaluate(in)
	if a.Score != 65 || a.Level != LevelHigh || a.Action != ActionReview {
		t.Errorf("got %d/%s/%s, want 65/high/review", a.Score, a.Level, a.Action)
	}

	// Add low trust (20) = 85: critical/block.
	in.TrustScore = 10
	a = Evaluate(in)
	if a.Score != 85 || a.Level != LevelCritical || a.Action != ActionBlock {
		t.Errorf("got %d/%s/%s, want 85/critical/block", a.Score, a.Level, a.Action)
	}
}

func TestEvaluateScoreCapped(t *testing.T) {
	in := Input{
		UserID:       "usr_worst",
		DevicePeers:  3,
		IPAccounts:   8,
		DuplicateUPI: true,
		TrustScore:   5,
		AccountAge:   time.Hour,
		NoShowCount:  10,
		ReportCount:  10,
	}
	a := Evaluate(in)
	if a.Score != 100 {
		t.Errorf("score = %d, want capped at 100", a.Score)
	}
}

// Identical evidence must always yield an identical assessment.
func TestEvaluateDeterministic(t *testing.T) {
	in := Input{
		UserID:       "usr_a",
		DevicePeers:  1,
		IPAccounts:   4,
		DuplicateUPI: true,
		TrustScore:   25,
		AccountAge:   6 * time.Hour,
		NoShowCount:  5,
		ReportCount:  3,
	}
	first := Evaluate(in)
	for i := 0; i < 10; i++ {
		if got := Evaluate(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("assessment diverged on run %d: %+v vs %+v", i, got, first)
		}
	}
}

// stubDirectory is a fixed-answer Directory for aggregator tests.
type stubDirectory struct {
	profiles   map[string]*Profile
	peers      map[string][]string
	ipCounts   map[string]int
	upiOwners  map[string]string
	flagged    map[string]bool
	suspected  map[string][]string
	candidates []*Profile
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		profiles:  make(map[string]*Profile),
		peers:     make(map[string][]string),
		ipCounts:  make(map[string]int),
		upiOwners: make(map[string]string),
		flagged:   make(map[string]bool),
		suspected: make(map[string][]string),
	}
}

func (d *stubDirectory) Profile(_ context.Context, userID string) (*Profile, error) {
	p, ok := d.profiles[userID]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}

func (d *stubDirectory) DevicePeers(_ context.Context, fingerprint, exclude string) ([]string, error) {
	var out []string
	for _, id := range d.peers[fingerprint] {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *stubDirectory) IPAccountCount(_ context.Context, ip string) (int, error) {
	return d.ipCounts[ip], nil
}

func (d *stubDirectory) UPIBoundElsewhere(_ context.Context, upi, exclude string) (bool, error) {
	owner, ok := d.upiOwners[upi]
	return ok && owner != exclude, nil
}

func (d *stubDirectory) MarkFlagged(_ context.Context, userID string) error {
	d.flagged[userID] = true
	return nil
}

func (d *stubDirectory) MarkSuspectedMultiAccount(_ context.Context, userID string, linked []string) (bool, error) {
	changed := false
	for _, id := range linked {
		known := false
		for _, existing := range d.suspected[userID] {
			if existing == id {
				known = true
				break
			}
		}
		if !known {
			d.suspected[userID] = append(d.suspected[userID], id)
			changed = true
		}
	}
	return changed, nil
}

func (d *stubDirectory) SweepCandidates(_ context.Context, _ int) ([]*Profile, error) {
	return d.candidates, nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "user not found" }

func TestAggregatorUsesProfileEvidence(t *testing.T) {
	dir := newStubDirectory()
	dir.profiles["usr_a"] = &Profile{
		UserID:            "usr_a",
		TrustScore:        50,
		CreatedAt:         time.Now().Add(-30 * 24 * time.Hour),
		DeviceFingerprint: "dev_1",
		LastIP:            "10.0.0.9",
		UPIID:             "ram@upi",
	}
	dir.peers["dev_1"] = []string{"usr_a", "usr_b"}
	dir.ipCounts["10.0.0.9"] = 1
	dir.upiOwners["ram@upi"] = "usr_a"

	agg := NewAggregator(dir, nil)
	a, err := agg.Assess(context.Background(), "usr_a", "", "", "")
	if err != nil {
		t.Fatal(err)
	}

	// Only the shared device fires: own UPI, quiet IP.
	if a.Score != 40 {
		t.Errorf("score = %d, want 40", a.Score)
	}
	if !a.MultiAccountDetected {
		t.Error("expected multiAccountDetected from device peer")
	}
	if a.ID == "" || a.AssessedAt.IsZero() {
		t.Error("aggregator should stamp id and timestamp")
	}
}

func TestSweeperMarksBothSides(t *testing.T) {
	dir := newStubDirectory()
	candidate := &Profile{UserID: "usr_a", DeviceFingerprint: "dev_1", Flagged: true}
	dir.candidates = []*Profile{candidate}
	dir.peers["dev_1"] = []string{"usr_a", "usr_b"}

	store := NewMemoryStore()
	sweeper := NewSweeper(dir, store, time.Minute, discardLogger())

	marked, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if marked != 2 {
		t.Errorf("marked = %d, want 2", marked)
	}
	if got := dir.suspected["usr_a"]; len(got) != 1 || got[0] != "usr_b" {
		t.Errorf("usr_a linked set = %v, want [usr_b]", got)
	}
	if got := dir.suspected["usr_b"]; len(got) != 1 || got[0] != "usr_a" {
		t.Errorf("usr_b linked set = %v, want [usr_a]", got)
	}

	signals, err := store.ListSignals(context.Background(), "usr_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 1 || signals[0].Type != "multi_account" || signals[0].Severity != "high" {
		t.Errorf("unexpected audit signals: %+v", signals)
	}
}

func TestSweeperDoesNotRepeatSignalsForKnownLinks(t *testing.T) {
	dir := newStubDirectory()
	candidate := &Profile{UserID: "usr_a", DeviceFingerprint: "dev_1", Flagged: true}
	dir.candidates = []*Profile{candidate}
	dir.peers["dev_1"] = []string{"usr_a", "usr_b"}

	store := NewMemoryStore()
	sweeper := NewSweeper(dir, store, time.Minute, discardLogger())

	// Flagged accounts never leave the candidate set, so the same link
	// comes back on every pass.
	for i := 0; i < 3; i++ {
		marked, err := sweeper.Sweep(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 && marked != 2 {
			t.Errorf("first pass marked = %d, want 2", marked)
		}
		if i > 0 && marked != 0 {
			t.Errorf("pass %d marked = %d, want 0", i, marked)
		}
	}

	signals, err := store.ListSignals(context.Background(), "usr_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals after 3 passes = %d, want 1", len(signals))
	}
}
