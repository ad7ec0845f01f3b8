package contentdata

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/siteadmin/content-services/internal/page"
)

var ErrNotFound = errors.New("content data not found")

// Repository persists the reference-data document and the job openings
// fanned out of it.
type Repository interface {
	GetReferenceData(ctx context.Context) (page.Content, error)
	UpsertReferenceData(ctx context.Context, doc page.Content) error
	UpsertJobOpening(ctx context.Context, id string, doc page.Content) error
	ListJobOpenings(ctx context.Context) ([]page.Content, error)
}

// MemoryRepo keeps reference data in process memory.
type MemoryRepo struct {
	mu   sync.RWMutex
	data page.Content
	jobs map[string]page.Content
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]page.Content)}
}

func (m *MemoryRepo) GetReferenceData(context.Context) (page.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return m.data.Clone(), nil
}

func (m *MemoryRepo) UpsertReferenceData(_ context.Context, doc page.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = doc.Clone()
	return nil
}

func (m *MemoryRepo) UpsertJobOpening(_ context.Context, id string, doc page.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = doc.Clone()
	return nil
}

// ListJobOpenings returns openings ordered by id.
func (m *MemoryRepo) ListJobOpenings(context.Context) ([]page.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]page.Content, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.jobs[id].Clone())
	}
	return out, nil
}
