// Package contentsync writes page content to both the page files and the
// document store, and reconciles the two in bulk.
package contentsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/internal/page/repository"
	"github.com/siteadmin/content-services/pkg/logger"
	"github.com/siteadmin/content-services/pkg/metrics"
)

// DefaultTolerance is the lastModified drift ValidateConsistency accepts.
const DefaultTolerance = time.Second

// FileStore is the subset of the page file store the sync service uses.
type FileStore interface {
	ReadPage(pageID string) (page.Content, error)
	WritePage(pageID string, doc page.Content) (filestore.WriteResult, error)
	ListPages() ([]page.Summary, error)
}

// Service keeps the page files and the document store in step.
type Service struct {
	repo      repository.Repository
	files     FileStore
	mode      environment.Mode
	now       func() time.Time
	tolerance time.Duration
}

type Option func(*Service)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTolerance sets the lastModified drift accepted by ValidateConsistency.
func WithTolerance(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.tolerance = d
		}
	}
}

func New(repo repository.Repository, files FileStore, mode environment.Mode, opts ...Option) *Service {
	s := &Service{repo: repo, files: files, mode: mode, now: time.Now, tolerance: DefaultTolerance}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UpdateResult describes what UpdatePageContent did to each store.
type UpdateResult struct {
	PageID  string                `json:"pageId"`
	File    filestore.WriteResult `json:"file"`
	FileErr error                 `json:"-"`
	Record  *page.Record          `json:"record,omitempty"`
	Created bool                  `json:"created"`
}

// UpdateError is returned when the document store write failed. FileErr is
// set when the file write failed as well.
type UpdateError struct {
	PageID   string
	FileErr  error
	StoreErr error
}

func (e *UpdateError) Error() string {
	if e.FileErr != nil {
		return fmt.Sprintf("update %s: database: %v; file: %v", e.PageID, e.StoreErr, e.FileErr)
	}
	return fmt.Sprintf("update %s: database: %v", e.PageID, e.StoreErr)
}

func (e *UpdateError) Unwrap() []error {
	errs := []error{e.StoreErr}
	if e.FileErr != nil {
		errs = append(errs, e.FileErr)
	}
	return errs
}

// UpdatePageContent merges update into the page file (writable deployments
// only) and into the document store record, creating the record when needed.
// The file write is best effort; only a document store failure is returned.
func (s *Service) UpdatePageContent(ctx context.Context, pageID string, update page.Content) (*UpdateResult, error) {
	log := logger.With("updatePageContent", pageID)
	res := &UpdateResult{PageID: pageID}

	file, fileErr := s.UpdateFile(ctx, pageID, update)
	res.File = file
	if fileErr != nil {
		res.FileErr = fileErr
		log.Warn().Err(fileErr).Msg("file write failed, continuing with database")
	}

	rec, created, err := s.UpsertRecord(ctx, pageID, update)
	if err != nil {
		log.Error().Err(err).Msg("database write failed")
		return res, &UpdateError{PageID: pageID, FileErr: fileErr, StoreErr: err}
	}
	res.Record = rec
	res.Created = created
	log.Debug().Bool("created", created).Bool("fileSkipped", file.Skipped).Msg("page content updated")
	return res, nil
}

// UpdateFile shallow-merges update onto the page file and writes it back.
// Read-only deployments get a skipped result without touching the disk.
func (s *Service) UpdateFile(_ context.Context, pageID string, update page.Content) (filestore.WriteResult, error) {
	if !s.mode.Writable() {
		metrics.StoreWrites.WithLabelValues("file", "skipped").Inc()
		return filestore.WriteResult{Skipped: true, Reason: "read-only deployment"}, nil
	}
	base, err := s.files.ReadPage(pageID)
	if err != nil {
		if !filestore.IsAbsent(err) {
			metrics.StoreWrites.WithLabelValues("file", "error").Inc()
			return filestore.WriteResult{}, err
		}
		base = page.Content{}
	}
	res, err := s.files.WritePage(pageID, page.Merge(base, update, s.now()))
	switch {
	case err != nil:
		metrics.StoreWrites.WithLabelValues("file", "error").Inc()
	case res.Skipped:
		metrics.StoreWrites.WithLabelValues("file", "skipped").Inc()
	default:
		metrics.StoreWrites.WithLabelValues("file", "ok").Inc()
	}
	return res, err
}

// UpsertRecord patches the page's document store record, or creates it from
// the seed file (writable deployments) or defaults, overlaid with update.
func (s *Service) UpsertRecord(ctx context.Context, pageID string, update page.Content) (*page.Record, bool, error) {
	rec, err := s.upsertRecord(ctx, pageID, update)
	if err != nil {
		metrics.StoreWrites.WithLabelValues("database", "error").Inc()
		return nil, false, err
	}
	metrics.StoreWrites.WithLabelValues("database", "ok").Inc()
	return rec.record, rec.created, nil
}

type upserted struct {
	record  *page.Record
	created bool
}

func (s *Service) upsertRecord(ctx context.Context, pageID string, update page.Content) (upserted, error) {
	rec, err := s.repo.FindByPageID(ctx, pageID)
	if errors.Is(err, repository.ErrNotFound) {
		doc := page.Merge(s.seed(pageID), update, s.now())
		created, cerr := s.repo.Create(ctx, page.NewRecord(pageID, doc))
		if cerr == nil {
			return upserted{record: created, created: true}, nil
		}
		if !errors.Is(cerr, repository.ErrConflict) {
			return upserted{}, cerr
		}
		// created concurrently; patch the winner instead
		rec, err = s.repo.FindByPageID(ctx, pageID)
	}
	if err != nil {
		return upserted{}, err
	}
	updated, err := s.repo.UpdatePartial(ctx, rec.ID, page.PatchFrom(update))
	if err != nil {
		return upserted{}, err
	}
	return upserted{record: updated}, nil
}

// seed is the starting document for a page with no record yet.
func (s *Service) seed(pageID string) page.Content {
	if s.mode.Writable() {
		doc, err := s.files.ReadPage(pageID)
		if err == nil {
			return doc
		}
		if !filestore.IsAbsent(err) {
			logger.With("seed", pageID).Warn().Err(err).Msg("seed file unreadable, using defaults")
		}
	}
	return page.Defaults(pageID)
}

// ItemError is one failed item of a batch.
type ItemError struct {
	PageID string `json:"pageId"`
	Error  string `json:"error"`
}

// Report summarizes a batch job. Batches never stop on a failed item.
type Report struct {
	Job       string      `json:"job"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Skipped   bool        `json:"skipped,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Failures  []ItemError `json:"failures"`
}

// OK reports whether every item succeeded.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

func (r *Report) fail(pageID string, err string) {
	r.Failures = append(r.Failures, ItemError{PageID: pageID, Error: err})
	metrics.SyncItems.WithLabelValues(r.Job, "error").Inc()
	logger.With(r.Job, pageID).Warn().Str("reason", err).Msg("batch item failed")
}

func (r *Report) succeed() {
	r.Succeeded++
	metrics.SyncItems.WithLabelValues(r.Job, "ok").Inc()
}

func newReport(job string) *Report { return &Report{Job: job, Failures: []ItemError{}} }

// SyncAllFilesToDatabase upserts every page file into the document store.
func (s *Service) SyncAllFilesToDatabase(ctx context.Context) (*Report, error) {
	rep := newReport("filesToDatabase")
	list, err := s.files.ListPages()
	if err != nil {
		return nil, fmt.Errorf("list page files: %w", err)
	}
	for _, sum := range list {
		rep.Total++
		if sum.Status == page.StatusError {
			rep.fail(sum.PageID, sum.Error)
			continue
		}
		doc, err := s.files.ReadPage(sum.PageID)
		if err != nil {
			rep.fail(sum.PageID, err.Error())
			continue
		}
		if err := s.replaceRecord(ctx, sum.PageID, doc); err != nil {
			rep.fail(sum.PageID, err.Error())
			continue
		}
		rep.succeed()
	}
	logger.With(rep.Job, "").Info().Int("total", rep.Total).Int("failed", len(rep.Failures)).Msg("files synced to database")
	return rep, nil
}

func (s *Service) replaceRecord(ctx context.Context, pageID string, doc page.Content) error {
	rec, err := s.repo.FindByPageID(ctx, pageID)
	if errors.Is(err, repository.ErrNotFound) {
		_, err = s.repo.Create(ctx, page.NewRecord(pageID, doc))
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.repo.UpdateFull(ctx, rec.ID, page.NewRecord(pageID, doc))
	return err
}

// SyncDatabaseToFiles overwrites each page file from its record. It does
// nothing in read-only deployments.
func (s *Service) SyncDatabaseToFiles(ctx context.Context) (*Report, error) {
	rep := newReport("databaseToFiles")
	if !s.mode.Writable() {
		rep.Skipped = true
		rep.Reason = "read-only deployment"
		return rep, nil
	}
	recs, err := repository.ListAll(ctx, s.repo, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list page records: %w", err)
	}
	for _, rec := range recs {
		rep.Total++
		if _, err := s.files.WritePage(rec.PageID, rec.Document()); err != nil {
			rep.fail(rec.PageID, err.Error())
			continue
		}
		rep.succeed()
	}
	return rep, nil
}

// ConsistencyReport lists every divergence between the two stores.
type ConsistencyReport struct {
	Consistent bool     `json:"consistent"`
	Checked    int      `json:"checked"`
	Issues     []string `json:"issues"`
}

// ValidateConsistency compares every known page across both stores without
// repairing anything.
func (s *Service) ValidateConsistency(ctx context.Context) (*ConsistencyReport, error) {
	rep := &ConsistencyReport{Issues: []string{}}

	files := map[string]page.Summary{}
	filesOK := true
	list, err := s.files.ListPages()
	if err != nil {
		filesOK = false
		rep.Issues = append(rep.Issues, fmt.Sprintf("file store unavailable: %v", err))
	}
	for _, sum := range list {
		files[sum.PageID] = sum
	}

	records := map[string]*page.Record{}
	dbOK := true
	recs, err := repository.ListAll(ctx, s.repo, repository.Filter{})
	if err != nil {
		dbOK = false
		rep.Issues = append(rep.Issues, fmt.Sprintf("database unavailable: %v", err))
	}
	for _, r := range recs {
		records[r.PageID] = r
	}

	for _, id := range unionIDs(files, records) {
		rep.Checked++
		f, inFile := files[id]
		r, inDB := records[id]
		switch {
		case inFile && f.Status == page.StatusError:
			rep.Issues = append(rep.Issues, fmt.Sprintf("%s: file unreadable: %s", id, f.Error))
			if !inDB && dbOK {
				rep.Issues = append(rep.Issues, fmt.Sprintf("%s: present in file store but missing from database", id))
			}
		case !inFile:
			if filesOK {
				rep.Issues = append(rep.Issues, fmt.Sprintf("%s: present in database but missing from file store", id))
			}
		case !inDB:
			if dbOK {
				rep.Issues = append(rep.Issues, fmt.Sprintf("%s: present in file store but missing from database", id))
			}
		default:
			rep.Issues = append(rep.Issues, s.compare(id, f, r)...)
		}
	}
	rep.Consistent = len(rep.Issues) == 0
	return rep, nil
}

func (s *Service) compare(id string, f page.Summary, r *page.Record) []string {
	var issues []string
	if f.LastModified == nil {
		issues = append(issues, fmt.Sprintf("%s: file has no lastModified (database %s)", id, r.LastModified.Format(page.TimeLayout)))
	} else if diff := f.LastModified.Sub(r.LastModified).Abs(); diff > s.tolerance {
		issues = append(issues, fmt.Sprintf("%s: lastModified mismatch (file %s, database %s, diff %s)",
			id, f.LastModified.UTC().Format(page.TimeLayout), r.LastModified.Format(page.TimeLayout), diff))
	}
	if strings.TrimSpace(f.Title) != strings.TrimSpace(r.Title) {
		issues = append(issues, fmt.Sprintf("%s: title mismatch (file %q, database %q)", id, f.Title, r.Title))
	}
	return issues
}

func unionIDs(files map[string]page.Summary, records map[string]*page.Record) []string {
	seen := make(map[string]struct{}, len(files)+len(records))
	ids := make([]string, 0, len(files)+len(records))
	for id := range files {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range records {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Archiver stores JSON objects by key.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

// Backup copies every document store record into the archiver as
// pages/{pageId}.json.
func (s *Service) Backup(ctx context.Context, archiver Archiver) (*Report, error) {
	rep := newReport("backup")
	recs, err := repository.ListAll(ctx, s.repo, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list page records: %w", err)
	}
	for _, rec := range recs {
		rep.Total++
		if err := archiver.PutJSON(ctx, "pages/"+rec.PageID+".json", rec.Document()); err != nil {
			rep.fail(rec.PageID, err.Error())
			continue
		}
		rep.succeed()
	}
	return rep, nil
}
