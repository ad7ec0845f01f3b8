// Package runlog records the outcome of batch sync runs so operators can see
// when the stores were last reconciled.
package runlog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/pkg/logger"
)

var ErrNotFound = errors.New("run not found")

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run is one batch job execution.
type Run struct {
	RunID      string    `bson:"runId" json:"runId"`
	Job        string    `bson:"job" json:"job"`
	Status     string    `bson:"status" json:"status"`
	StartedAt  time.Time `bson:"startedAt" json:"startedAt"`
	FinishedAt time.Time `bson:"finishedAt" json:"finishedAt"`
	Total      int       `bson:"total" json:"total"`
	Succeeded  int       `bson:"succeeded" json:"succeeded"`
	Failed     int       `bson:"failed" json:"failed"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
}

// FromReport summarizes a finished batch. rep may be nil when err is set.
func FromReport(job string, started, finished time.Time, rep *contentsync.Report, err error) *Run {
	r := &Run{RunID: uuid.NewString(), Job: job, StartedAt: started.UTC(), FinishedAt: finished.UTC()}
	switch {
	case err != nil:
		r.Status = StatusFailed
		r.Error = err.Error()
	case rep == nil:
		r.Status = StatusFailed
	case rep.Skipped:
		r.Status = StatusSkipped
		r.Error = rep.Reason
	case !rep.OK():
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
	if rep != nil {
		r.Total = rep.Total
		r.Succeeded = rep.Succeeded
		r.Failed = len(rep.Failures)
	}
	return r
}

// Store persists runs.
type Store interface {
	Save(ctx context.Context, r *Run) error
	Load(ctx context.Context, runID string) (*Run, error)
	Recent(ctx context.Context, limit int) ([]*Run, error)
}

// Record times fn, stores its run and passes its results through. A failure
// to store the run is logged and otherwise ignored.
func Record(ctx context.Context, s Store, job string, fn func(context.Context) (*contentsync.Report, error)) (*contentsync.Report, *Run, error) {
	started := time.Now()
	rep, err := fn(ctx)
	run := FromReport(job, started, time.Now(), rep, err)
	if s == nil {
		return rep, run, err
	}
	if serr := s.Save(ctx, run); serr != nil {
		logger.Errorf("runlog: save %s run %s: %v", job, run.RunID, serr)
	}
	return rep, run, err
}

// MemoryStore keeps the most recent runs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
	max  int
}

// NewMemoryStore keeps up to max runs; max <= 0 means 100.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 100
	}
	return &MemoryStore{runs: make(map[string]*Run), max: max}
}

func (m *MemoryStore) Save(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.runs[r.RunID] = &cp
	if len(m.runs) > m.max {
		oldest := newestFirst(m.runs)[len(m.runs)-1]
		delete(m.runs, oldest.RunID)
	}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := newestFirst(m.runs)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*Run, len(all))
	for i, r := range all {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func newestFirst(runs map[string]*Run) []*Run {
	out := make([]*Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
