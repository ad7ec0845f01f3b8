package contentsync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/internal/page/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDown = errors.New("database down")
	errDisk = errors.New("disk full")
)

type downRepo struct{ *repository.MemoryRepo }

func (downRepo) FindByPageID(context.Context, string) (*page.Record, error) { return nil, errDown }
func (downRepo) List(context.Context, repository.Filter, repository.Pagination) ([]*page.Record, error) {
	return nil, errDown
}

type brokenFiles struct{ FileStore }

func (brokenFiles) ReadPage(string) (page.Content, error) { return nil, filestore.ErrNotFound }
func (brokenFiles) WritePage(string, page.Content) (filestore.WriteResult, error) {
	return filestore.WriteResult{}, errDisk
}

type memArchive map[string]interface{}

func (m memArchive) PutJSON(_ context.Context, key string, v interface{}) error {
	if strings.Contains(key, "reject") {
		return errors.New("bucket refused object")
	}
	m[key] = v
	return nil
}

func writeJSON(t *testing.T, dir, name string, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
}

func readJSON(t *testing.T, path string) page.Content {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc page.Content
	require.NoError(t, json.Unmarshal(b, &doc))
	return doc
}

func newService(t *testing.T, mode environment.Mode) (*Service, *repository.MemoryRepo, string) {
	t.Helper()
	dir := t.TempDir()
	repo := repository.NewMemoryRepo()
	files := filestore.New(filestore.Options{PagesDir: dir, DataFile: filepath.Join(dir, "data.json"), Mode: mode})
	return New(repo, files, mode), repo, dir
}

func TestUpdatePageContentSeedsFromFile(t *testing.T) {
	svc, repo, dir := newService(t, environment.Writable)
	writeJSON(t, dir, "jobs.json", map[string]interface{}{
		"pageId":    "jobs",
		"title":     "Careers",
		"published": false,
		"hero":      map[string]interface{}{"headline": "Join us"},
	})
	started := time.Now().UTC()

	res, err := svc.UpdatePageContent(context.Background(), "jobs", page.Content{"published": true})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.False(t, res.File.Skipped)

	doc := readJSON(t, filepath.Join(dir, "jobs.json"))
	assert.Equal(t, true, doc["published"])
	assert.Equal(t, "Careers", doc["title"])
	assert.Equal(t, map[string]interface{}{"headline": "Join us"}, doc["hero"])
	lm, ok := doc.LastModified()
	require.True(t, ok)
	assert.False(t, lm.Before(started))

	rec, err := repo.FindByPageID(context.Background(), "jobs")
	require.NoError(t, err)
	assert.True(t, rec.IsPublished)
	assert.Equal(t, "Careers", rec.Title)
	assert.Equal(t, map[string]interface{}{"headline": "Join us"}, rec.Content["hero"])
}

func TestUpdatePageContentReadOnlyLeavesFilesAlone(t *testing.T) {
	svc, repo, dir := newService(t, environment.ReadOnly)
	writeJSON(t, dir, "about.json", map[string]interface{}{"pageId": "about", "title": "About us"})
	before, err := os.ReadFile(filepath.Join(dir, "about.json"))
	require.NoError(t, err)

	res, err := svc.UpdatePageContent(context.Background(), "about", page.Content{"intro": "hello"})
	require.NoError(t, err)
	assert.True(t, res.File.Skipped)

	after, err := os.ReadFile(filepath.Join(dir, "about.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// the seed file is ignored when the filesystem is read-only
	rec, err := repo.FindByPageID(context.Background(), "about")
	require.NoError(t, err)
	assert.Equal(t, page.DefaultTitle, rec.Title)
	assert.Equal(t, "hello", rec.Content["intro"])
}

func TestUpdatePageContentPatchesExistingRecord(t *testing.T) {
	svc, repo, _ := newService(t, environment.ReadOnly)
	ctx := context.Background()
	_, err := repo.Create(ctx, page.NewRecord("home", page.Content{"title": "Home", "hero": "old", "footer": "keep"}))
	require.NoError(t, err)

	res, err := svc.UpdatePageContent(ctx, "home", page.Content{"hero": "new", "title": "Welcome"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "Welcome", res.Record.Title)
	assert.Equal(t, "new", res.Record.Content["hero"])
	assert.Equal(t, "keep", res.Record.Content["footer"])
}

func TestUpdatePageContentFileFailureIsNotFatal(t *testing.T) {
	repo := repository.NewMemoryRepo()
	svc := New(repo, brokenFiles{}, environment.Writable)

	res, err := svc.UpdatePageContent(context.Background(), "home", page.Content{"title": "Home"})
	require.NoError(t, err)
	require.ErrorIs(t, res.FileErr, errDisk)
	require.NotNil(t, res.Record)
	assert.Equal(t, "Home", res.Record.Title)
}

func TestUpdatePageContentAggregatesBothFailures(t *testing.T) {
	svc := New(downRepo{repository.NewMemoryRepo()}, brokenFiles{}, environment.Writable)

	_, err := svc.UpdatePageContent(context.Background(), "home", page.Content{"title": "Home"})
	require.Error(t, err)
	var ue *UpdateError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "home", ue.PageID)
	assert.ErrorIs(t, err, errDown)
	assert.ErrorIs(t, err, errDisk)
}

func TestUpdatePageContentStoreFailureOnly(t *testing.T) {
	dir := t.TempDir()
	files := filestore.New(filestore.Options{PagesDir: dir, Mode: environment.Writable})
	svc := New(downRepo{repository.NewMemoryRepo()}, files, environment.Writable)

	res, err := svc.UpdatePageContent(context.Background(), "home", page.Content{"title": "Home"})
	require.ErrorIs(t, err, errDown)
	assert.NotErrorIs(t, err, errDisk)
	// the file write still went through
	assert.Equal(t, "Home", readJSON(t, res.File.Path)["title"])
}

func TestSyncAllFilesToDatabaseIsolatesFailures(t *testing.T) {
	svc, repo, dir := newService(t, environment.Writable)
	ctx := context.Background()
	writeJSON(t, dir, "a.json", map[string]interface{}{"title": "A"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	writeJSON(t, dir, "c.json", map[string]interface{}{"title": "C", "published": true})
	_, err := repo.Create(ctx, page.NewRecord("c", page.Content{"title": "old C"}))
	require.NoError(t, err)

	rep, err := svc.SyncAllFilesToDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Succeeded)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "bad", rep.Failures[0].PageID)
	assert.False(t, rep.OK())

	a, err := repo.FindByPageID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", a.Title)
	c, err := repo.FindByPageID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "C", c.Title)
	assert.True(t, c.IsPublished)
}

func TestSyncDatabaseToFiles(t *testing.T) {
	ctx := context.Background()

	ro, roRepo, roDir := newService(t, environment.ReadOnly)
	_, err := roRepo.Create(ctx, page.NewRecord("home", page.Content{"title": "Home"}))
	require.NoError(t, err)
	rep, err := ro.SyncDatabaseToFiles(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.NoFileExists(t, filepath.Join(roDir, "home.json"))

	rw, rwRepo, rwDir := newService(t, environment.Writable)
	_, err = rwRepo.Create(ctx, page.NewRecord("home", page.Content{"title": "Home", "hero": "x"}))
	require.NoError(t, err)
	rep, err = rw.SyncDatabaseToFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	doc := readJSON(t, filepath.Join(rwDir, "home.json"))
	assert.Equal(t, "Home", doc["title"])
	assert.Equal(t, "x", doc["hero"])
}

func TestValidateConsistencyReportsEveryDiscrepancy(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	repo := repository.NewMemoryRepo().WithClock(func() time.Time { return base.Add(2 * time.Second) })
	files := filestore.New(filestore.Options{PagesDir: dir, Mode: environment.Writable})
	svc := New(repo, files, environment.Writable)

	writeJSON(t, dir, "home.json", map[string]interface{}{"title": "A", "lastModified": base.Format(time.RFC3339Nano)})
	writeJSON(t, dir, "only-file.json", map[string]interface{}{"title": "F"})
	_, err := repo.Create(ctx, page.NewRecord("home", page.Content{"title": "B"}))
	require.NoError(t, err)
	_, err = repo.Create(ctx, page.NewRecord("only-db", page.Content{"title": "D"}))
	require.NoError(t, err)

	rep, err := svc.ValidateConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Consistent)
	assert.Equal(t, 3, rep.Checked)
	joined := strings.Join(rep.Issues, "\n")
	assert.Contains(t, joined, "home: lastModified mismatch")
	assert.Contains(t, joined, "home: title mismatch")
	assert.Contains(t, joined, "only-file: present in file store but missing from database")
	assert.Contains(t, joined, "only-db: present in database but missing from file store")
	assert.Len(t, rep.Issues, 4)
}

func TestValidateConsistencyWithinTolerance(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	repo := repository.NewMemoryRepo().WithClock(func() time.Time { return base.Add(400 * time.Millisecond) })
	files := filestore.New(filestore.Options{PagesDir: dir, Mode: environment.Writable})
	svc := New(repo, files, environment.Writable)

	writeJSON(t, dir, "home.json", map[string]interface{}{"title": "Home", "lastModified": base.Format(time.RFC3339Nano)})
	_, err := repo.Create(ctx, page.NewRecord("home", page.Content{"title": "Home"}))
	require.NoError(t, err)

	rep, err := svc.ValidateConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Consistent, rep.Issues)

	strict := New(repo, files, environment.Writable, WithTolerance(100*time.Millisecond))
	rep, err = strict.ValidateConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Consistent)
}

func TestValidateConsistencyDatabaseDown(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "home.json", map[string]interface{}{"title": "Home"})
	files := filestore.New(filestore.Options{PagesDir: dir, Mode: environment.Writable})
	svc := New(downRepo{repository.NewMemoryRepo()}, files, environment.Writable)

	rep, err := svc.ValidateConsistency(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Issues, 1)
	assert.Contains(t, rep.Issues[0], "database unavailable")
}

func TestBackupIsolatesFailures(t *testing.T) {
	svc, repo, _ := newService(t, environment.ReadOnly)
	ctx := context.Background()
	for _, id := range []string{"home", "reject-me", "team"} {
		_, err := repo.Create(ctx, page.NewRecord(id, page.Content{"title": id}))
		require.NoError(t, err)
	}

	archive := memArchive{}
	rep, err := svc.Backup(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Succeeded)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "reject-me", rep.Failures[0].PageID)
	assert.Contains(t, archive, "pages/home.json")
	assert.Contains(t, archive, "pages/team.json")
}
