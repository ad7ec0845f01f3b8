package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/cache"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/internal/page/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("database down")

type downRepo struct{ *repository.MemoryRepo }

func (downRepo) FindByPageID(context.Context, string) (*page.Record, error) { return nil, errDown }
func (downRepo) Count(context.Context, repository.Filter) (int, error)      { return 0, errDown }
func (downRepo) Create(context.Context, *page.Record) (*page.Record, error) { return nil, errDown }
func (downRepo) List(context.Context, repository.Filter, repository.Pagination) ([]*page.Record, error) {
	return nil, errDown
}

type downFiles struct{ contentsync.FileStore }

func (downFiles) ReadPage(string) (page.Content, error) { return nil, filestore.ErrNotFound }
func (downFiles) ListPages() ([]page.Summary, error)    { return nil, errors.New("permission denied") }

// failingWriter fails the combined write but keeps the single-store paths.
type failingWriter struct{ *contentsync.Service }

func (failingWriter) UpdatePageContent(_ context.Context, pageID string, _ page.Content) (*contentsync.UpdateResult, error) {
	return nil, &contentsync.UpdateError{PageID: pageID, StoreErr: errDown}
}

type fixture struct {
	dir   string
	repo  *repository.MemoryRepo
	files *filestore.Store
	sync  *contentsync.Service
}

func newFixture(t *testing.T, mode environment.Mode) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo := repository.NewMemoryRepo()
	files := filestore.New(filestore.Options{PagesDir: dir, Mode: mode})
	return &fixture{dir: dir, repo: repo, files: files, sync: contentsync.New(repo, files, mode)}
}

func (f *fixture) writeFile(t *testing.T, pageID string, doc map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, pageID+".json"), b, 0o644))
}

func (f *fixture) create(t *testing.T, pageID string, doc page.Content) {
	t.Helper()
	_, err := f.repo.Create(context.Background(), page.NewRecord(pageID, doc))
	require.NoError(t, err)
}

func TestHybridReadFallbackOrder(t *testing.T) {
	for _, mode := range []environment.Mode{environment.ReadOnly, environment.Writable} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode)
			ctx := context.Background()
			svc := New(Hybrid, f.repo, f.files, f.sync, mode)

			f.writeFile(t, "home", map[string]interface{}{"title": "From file"})
			f.create(t, "home", page.Content{"title": "From database"})
			f.writeFile(t, "about", map[string]interface{}{"title": "About file"})

			doc, src, err := svc.GetPageContent(ctx, "home")
			require.NoError(t, err)
			assert.Equal(t, page.SourceDatabase, src)
			assert.Equal(t, "From database", doc.Title())

			doc, src, err = svc.GetPageContent(ctx, "about")
			require.NoError(t, err)
			assert.Equal(t, page.SourceFile, src)
			assert.Equal(t, "About file", doc.Title())

			_, _, err = svc.GetPageContent(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestHybridReadSurvivesDatabaseOutage(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	f.writeFile(t, "home", map[string]interface{}{"title": "Home"})
	svc := New(Hybrid, downRepo{f.repo}, f.files, f.sync, environment.ReadOnly)

	doc, src, err := svc.GetPageContent(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, page.SourceFile, src)
	assert.Equal(t, "Home", doc.Title())
}

func TestPublishedGatesDatabaseRecords(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	ctx := context.Background()
	svc := New(Published, f.repo, f.files, f.sync, environment.ReadOnly)

	f.create(t, "draft", page.Content{"title": "Draft record", "published": false})
	f.writeFile(t, "draft", map[string]interface{}{"title": "Draft file", "published": false})
	f.create(t, "hidden", page.Content{"title": "Hidden", "published": false})
	f.create(t, "live", page.Content{"title": "Live", "published": true})

	doc, src, err := svc.GetPageContent(ctx, "draft")
	require.NoError(t, err)
	assert.Equal(t, page.SourceFile, src)
	assert.Equal(t, "Draft file", doc.Title())

	_, _, err = svc.GetPageContent(ctx, "hidden")
	require.ErrorIs(t, err, ErrNotFound)

	doc, src, err = svc.GetPageContent(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, page.SourceDatabase, src)
	assert.True(t, doc.Published())
}

func TestCachedReadExpiresOnly(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	ctx := context.Background()
	svc := New(Hybrid, f.repo, f.files, f.sync, environment.ReadOnly, WithCache(cache.NewMemory(time.Minute)))
	f.create(t, "home", page.Content{"title": "Before"})

	doc, src, err := svc.GetPageContentCached(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, page.SourceDatabase, src)
	assert.Equal(t, "Before", doc.Title())

	_, err = svc.UpdatePageContent(ctx, "home", page.Content{"title": "After"})
	require.NoError(t, err)

	doc, src, err = svc.GetPageContentCached(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, "Before", doc.Title(), "writes do not invalidate cached pages")

	_, _, err = svc.GetPageContentCached(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHybridWriteFallsBackToDatabaseWhenReadOnly(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	ctx := context.Background()
	svc := New(Hybrid, f.repo, f.files, failingWriter{f.sync}, environment.ReadOnly)

	_, err := svc.UpdatePageContent(ctx, "home", page.Content{"title": "New"})
	require.ErrorIs(t, err, errDown, "no record to patch")

	f.create(t, "home", page.Content{"title": "Old", "hero": "kept"})
	out, err := svc.UpdatePageContent(ctx, "home", page.Content{"title": "New"})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, "New", out.Record.Title)
	assert.Equal(t, "kept", out.Record.Content["hero"])
}

func TestHybridWriteFallsBackToFileWhenWritable(t *testing.T) {
	f := newFixture(t, environment.Writable)
	svc := New(Hybrid, f.repo, f.files, failingWriter{f.sync}, environment.Writable)

	out, err := svc.UpdatePageContent(context.Background(), "home", page.Content{"title": "Local"})
	require.NoError(t, err)
	assert.True(t, out.Fallback)

	doc, err := f.files.ReadPage("home")
	require.NoError(t, err)
	assert.Equal(t, "Local", doc.Title())
}

func TestHybridWriteThroughSync(t *testing.T) {
	f := newFixture(t, environment.Writable)
	svc := New(Hybrid, f.repo, f.files, f.sync, environment.Writable)

	out, err := svc.UpdatePageContent(context.Background(), "jobs", page.Content{"title": "Careers"})
	require.NoError(t, err)
	assert.False(t, out.Fallback)
	require.NotNil(t, out.Record)
	assert.Equal(t, "Careers", out.Record.Title)
	assert.FileExists(t, filepath.Join(f.dir, "jobs.json"))
}

func TestPublishedWriteCreatesWithDefaults(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	f.writeFile(t, "team", map[string]interface{}{"title": "Seed title"})
	svc := New(Published, f.repo, f.files, f.sync, environment.ReadOnly)

	out, err := svc.UpdatePageContent(context.Background(), "team", page.Content{"members": []interface{}{"Ada"}})
	require.NoError(t, err)
	assert.True(t, out.File.Skipped)
	assert.Equal(t, page.DefaultTitle, out.Record.Title)
	assert.Equal(t, []interface{}{"Ada"}, out.Record.Content["members"])

	out, err = svc.UpdatePageContent(context.Background(), "team", page.Content{"published": true})
	require.NoError(t, err)
	assert.True(t, out.Record.IsPublished)
	assert.Equal(t, []interface{}{"Ada"}, out.Record.Content["members"])
}

func TestPublishedWriteSeedsFromFileWhenWritable(t *testing.T) {
	f := newFixture(t, environment.Writable)
	ctx := context.Background()
	f.writeFile(t, "jobs", map[string]interface{}{
		"title":     "Careers",
		"hero":      map[string]interface{}{"headline": "Join us"},
		"published": false,
	})
	svc := New(Published, f.repo, f.files, f.sync, environment.Writable)

	out, err := svc.UpdatePageContent(ctx, "jobs", page.Content{"published": true})
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.Equal(t, "Careers", out.Record.Title)
	assert.True(t, out.Record.IsPublished)

	doc, src, err := svc.GetPageContent(ctx, "jobs")
	require.NoError(t, err)
	assert.Equal(t, page.SourceDatabase, src)
	assert.Equal(t, "Careers", doc.Title())
	assert.Equal(t, map[string]interface{}{"headline": "Join us"}, doc["hero"])

	rep, err := f.sync.ValidateConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
}

func TestPublishedWriteSucceedsOnlyWithDatabase(t *testing.T) {
	f := newFixture(t, environment.Writable)
	down := downRepo{f.repo}
	svc := New(Published, down, f.files, contentsync.New(down, f.files, environment.Writable), environment.Writable)

	out, err := svc.UpdatePageContent(context.Background(), "home", page.Content{"title": "Home"})
	require.ErrorIs(t, err, errDown)
	// the file is still written independently
	assert.False(t, out.File.Skipped)
	doc, rerr := f.files.ReadPage("home")
	require.NoError(t, rerr)
	assert.Equal(t, "Home", doc.Title())
}

func TestGetAllPagesDatabaseWins(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	f.create(t, "home", page.Content{"title": "DB home"})
	f.writeFile(t, "home", map[string]interface{}{"title": "File home"})
	f.writeFile(t, "about", map[string]interface{}{"title": "File about"})
	svc := New(Hybrid, f.repo, f.files, f.sync, environment.ReadOnly)

	list, err := svc.GetAllPages(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "about", list[0].PageID)
	assert.Equal(t, page.SourceFile, list[0].Source)
	assert.Equal(t, "DB home", list[1].Title)
	assert.Equal(t, page.SourceDatabase, list[1].Source)

	_, err = New(Hybrid, downRepo{f.repo}, downFiles{}, f.sync, environment.ReadOnly).GetAllPages(context.Background())
	require.Error(t, err)
}

func TestGetPageStatsFallbacks(t *testing.T) {
	f := newFixture(t, environment.ReadOnly)
	ctx := context.Background()
	f.create(t, "a", page.Content{"published": true})
	f.create(t, "b", page.Content{})
	f.writeFile(t, "x", map[string]interface{}{"published": true})

	st := New(Hybrid, f.repo, f.files, f.sync, environment.ReadOnly).GetPageStats(ctx)
	assert.Equal(t, Stats{Total: 2, Published: 1, Drafts: 1, Source: page.SourceDatabase}, st)

	st = New(Hybrid, downRepo{f.repo}, f.files, f.sync, environment.ReadOnly).GetPageStats(ctx)
	assert.Equal(t, Stats{Total: 1, Published: 1, Drafts: 0, Source: page.SourceFile}, st)

	st = New(Hybrid, downRepo{f.repo}, downFiles{}, f.sync, environment.ReadOnly).GetPageStats(ctx)
	assert.Equal(t, Stats{Source: "none"}, st)
}
