package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siteadmin/content-services/internal/page"
)

// MemoryRepo is an in-memory repository used for local runs and unit tests.
// Records are copied on the way in and out so callers never alias the store.
type MemoryRepo struct {
	mu     sync.RWMutex
	store  map[string]*page.Record
	byPage map[string]string
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store:  make(map[string]*page.Record),
		byPage: make(map[string]string),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source.
func (m *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	m.now = now
	return m
}

func (m *MemoryRepo) Create(_ context.Context, r *page.Record) (*page.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPage[r.PageID]; ok {
		return nil, ErrConflict
	}
	rec := r.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := m.store[rec.ID]; ok {
		return nil, ErrConflict
	}
	now := m.now().UTC()
	rec.CreatedAt = now
	page.Patch{}.Apply(rec, now)
	m.store[rec.ID] = rec
	m.byPage[rec.PageID] = rec.ID
	return rec.Clone(), nil
}

func (m *MemoryRepo) FindByID(_ context.Context, id string) (*page.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.store[id]; ok {
		return r.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) FindByPageID(_ context.Context, pageID string) (*page.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPage[pageID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.store[id].Clone(), nil
}

func (m *MemoryRepo) List(_ context.Context, f Filter, p Pagination) ([]*page.Record, error) {
	m.mu.RLock()
	matched := make([]*page.Record, 0, len(m.store))
	for _, r := range m.store {
		if f.match(r) {
			matched = append(matched, r.Clone())
		}
	}
	m.mu.RUnlock()
	sortByPageID(matched)
	start, end := p.window(len(matched))
	return matched[start:end], nil
}

func (m *MemoryRepo) Count(_ context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.store {
		if f.match(r) {
			n++
		}
	}
	return n, nil
}

// UpdateFull replaces everything but the identity and creation time.
func (m *MemoryRepo) UpdateFull(_ context.Context, id string, r *page.Record) (*page.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := r.Clone()
	rec.ID = cur.ID
	rec.PageID = cur.PageID
	rec.CreatedAt = cur.CreatedAt
	page.Patch{}.Apply(rec, m.now().UTC())
	m.store[id] = rec
	return rec.Clone(), nil
}

func (m *MemoryRepo) UpdatePartial(_ context.Context, id string, p page.Patch) (*page.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := cur.Clone()
	p.Apply(rec, m.now().UTC())
	m.store[id] = rec
	return rec.Clone(), nil
}
