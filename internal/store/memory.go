package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"musky.app/forecast/internal/model"
)

// MemoryReportStore keeps artifacts in process. Writes to the same date are
// serialized by a per-key mutex; different dates never contend.
type MemoryReportStore struct {
	mu    sync.RWMutex
	items map[string]*model.ReportArtifact
	locks map[string]*sync.Mutex
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		items: make(map[string]*model.ReportArtifact),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryReportStore) keyLock(dateKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[dateKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dateKey] = l
	}
	return l
}

func (s *MemoryReportStore) Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[dateKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryReportStore) Put(ctx context.Context, artifact *model.ReportArtifact) (*model.ReportArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if artifact == nil || artifact.DateKey == "" {
		return nil, fmt.Errorf("artifact date key is required")
	}

	l := s.keyLock(artifact.DateKey)
	l.Lock()
	defer l.Unlock()

	stored := persisted(artifact)
	s.mu.Lock()
	stored.Revision = 1
	if prev, ok := s.items[artifact.DateKey]; ok {
		stored.Revision = prev.Revision + 1
	}
	s.items[artifact.DateKey] = stored
	s.mu.Unlock()

	cp := *stored
	return &cp, nil
}

func (s *MemoryReportStore) Sweep(ctx context.Context, retainDays int, today time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := SweepCutoff(today, retainDays)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.items {
		if key < cutoff {
			delete(s.items, key)
			delete(s.locks, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryReportStore) Latest(ctx context.Context) (*model.ReportArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil, ErrNotFound
	}
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cp := *s.items[keys[len(keys)-1]]
	return &cp, nil
}
