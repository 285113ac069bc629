package gps

import (
	"context"
	"sync"
)

// History stores a bounded per-user trail of location samples. The store
// owns the cap; callers never see more than HistoryLimit samples.
type History interface {
	Append(ctx context.Context, userID string, sample Sample) error
	Recent(ctx context.Context, userID string) ([]Sample, error)
}

// MemoryHistory keeps sample trails in memory with per-user locking so
// concurrent pings for one user never interleave entries.
type MemoryHistory struct {
	trails sync.Map // map[string]*trail
	limit  int
}

type trail struct {
	mu      sync.Mutex
	samples []Sample
}

// NewMemoryHistory creates an in-memory history capped at HistoryLimit
// samples per user.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{limit: HistoryLimit}
}

func (m *MemoryHistory) Append(ctx context.Context, userID string, sample Sample) error {
	t := m.getTrail(userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, sample)
	if len(t.samples) > m.limit {
		t.samples = t.samples[len(t.samples)-m.limit:]
	}
	return nil
}

func (m *MemoryHistory) Recent(ctx context.Context, userID string) ([]Sample, error) {
	t := m.getTrail(userID)
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out, nil
}

func (m *MemoryHistory) getTrail(userID string) *trail {
	v, _ := m.trails.LoadOrStore(userID, &trail{})
	return v.(*trail)
}

var _ History = (*MemoryHistory)(nil)
