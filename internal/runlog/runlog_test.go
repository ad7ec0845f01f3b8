package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromReportStatus(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		rep  *contentsync.Report
		err  error
		want string
	}{
		{"ok", &contentsync.Report{Total: 2, Succeeded: 2}, nil, StatusOK},
		{"partial", &contentsync.Report{Total: 2, Succeeded: 1, Failures: []contentsync.ItemError{{PageID: "x"}}}, nil, StatusPartial},
		{"skipped", &contentsync.Report{Skipped: true, Reason: "read-only deployment"}, nil, StatusSkipped},
		{"failed", nil, errors.New("list failed"), StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := FromReport("filesToDatabase", now, now.Add(time.Second), tc.rep, tc.err)
			assert.Equal(t, tc.want, r.Status)
			assert.NotEmpty(t, r.RunID)
		})
	}
}

func TestRecordStoresRun(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	rep, run, err := Record(ctx, store, "backup", func(context.Context) (*contentsync.Report, error) {
		return &contentsync.Report{Job: "backup", Total: 1, Succeeded: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)

	got, err := store.Load(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got.Status)

	boom := errors.New("boom")
	_, _, err = Record(ctx, store, "backup", func(context.Context) (*contentsync.Report, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	_, err = store.Load(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreKeepsNewest(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, &Run{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].RunID)
	assert.Equal(t, "b", recent[1].RunID)

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, *Run) error { return errors.New("disk full") }
func (brokenStore) Load(context.Context, string) (*Run, error) { return nil, ErrNotFound }
func (brokenStore) Recent(context.Context, int) ([]*Run, error) { return nil, nil }

func TestRecordIgnoresSaveFailure(t *testing.T) {
	rep, run, err := Record(context.Background(), brokenStore{}, "filesToDatabase", func(context.Context) (*contentsync.Report, error) {
		return &contentsync.Report{Job: "filesToDatabase", Total: 2, Succeeded: 1, Failures: []contentsync.ItemError{{PageID: "x", Error: "bad"}}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, StatusPartial, run.Status)

	rep, run, err = Record(context.Background(), nil, "backup", func(context.Context) (*contentsync.Report, error) {
		return &contentsync.Report{Job: "backup"}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, rep)
	assert.Equal(t, StatusOK, run.Status)
}
