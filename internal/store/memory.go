package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/change-monitor/internal/model"
)

// MemoryStore keeps snapshots and runs in process memory. Nothing survives
// a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]model.Snapshot
	runs      []model.Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]model.Snapshot)}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetLatest(_ context.Context, url string) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[url]
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[len(snaps)-1]
	return &latest, nil
}

// Put appends snap to the URL's history, keeping the history ordered by
// TakenAt.
func (m *MemoryStore) Put(_ context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := append(m.snapshots[snap.URL], *snap)
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].TakenAt.Before(snaps[j].TakenAt)
	})
	m.snapshots[snap.URL] = snaps
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for url, snaps := range m.snapshots {
		last := len(snaps) - 1
		kept := snaps[:0]
		for i, s := range snaps {
			if i != last && s.TakenAt.Before(olderThan) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		m.snapshots[url] = kept
	}
	return removed, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	m.runs = append(m.runs, *run)
	return nil
}

// ListRuns returns matching runs newest first.
func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Run
	for _, r := range m.runs {
		if filter.EntityID != "" && r.EntityID != filter.EntityID {
			continue
		}
		if !filter.Since.IsZero() && r.StartedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	off := max(filter.Offset, 0)
	if off >= len(matched) {
		return nil, nil
	}
	matched = matched[off:]
	if n := filter.limit(); len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}
