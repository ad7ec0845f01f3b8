// Package contentdata manages the shared reference-data document
// (departments, job types, benefit catalog and the like) and the job
// openings it carries.
package contentdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/pkg/logger"
	"github.com/siteadmin/content-services/pkg/metrics"
)

// KeyJobOpenings is the reference-data field fanned out into job opening
// records.
const KeyJobOpenings = "jobOpenings"

// DataFile is the reference-data file on disk.
type DataFile interface {
	ReadDataFile() (page.Content, error)
	WriteDataFile(doc page.Content) (filestore.WriteResult, error)
}

type Service struct {
	repo  Repository
	files DataFile
	mode  environment.Mode
	now   func() time.Time
}

func New(repo Repository, files DataFile, mode environment.Mode) *Service {
	return &Service{repo: repo, files: files, mode: mode, now: time.Now}
}

// WithClock replaces the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type UpdateResult struct {
	File    filestore.WriteResult `json:"file"`
	FileErr error                 `json:"-"`
	Data    page.Content          `json:"data"`
	Jobs    *JobsReport           `json:"jobs,omitempty"`
}

// UpdateContentData merges update onto the reference-data file and the
// stored document, then upserts any job openings it carries. The file step
// is best effort; the returned error always includes the database failure.
func (s *Service) UpdateContentData(ctx context.Context, update page.Content) (*UpdateResult, error) {
	log := logger.With("updateContentData", "")
	res := &UpdateResult{}
	now := s.now()

	var fileDoc page.Content
	if s.mode.Writable() {
		base, err := s.files.ReadDataFile()
		if err == nil {
			fileDoc = base
		} else if !filestore.IsAbsent(err) {
			res.FileErr = err
		}
		if res.FileErr == nil {
			res.File, res.FileErr = s.files.WriteDataFile(page.Merge(base, update, now))
		}
		if res.FileErr != nil {
			log.Warn().Err(res.FileErr).Msg("reference data file write failed, continuing with database")
		}
	} else {
		res.File = filestore.WriteResult{Skipped: true, Reason: "read-only deployment"}
	}

	stored, err := s.repo.GetReferenceData(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		stored = fileDoc
	case err != nil:
		return res, joinFailures(err, res.FileErr)
	}
	merged := page.Merge(stored, update, now)
	if err := s.repo.UpsertReferenceData(ctx, merged); err != nil {
		log.Error().Err(err).Msg("reference data database write failed")
		return res, joinFailures(err, res.FileErr)
	}
	res.Data = merged

	if raw, ok := update[KeyJobOpenings]; ok {
		res.Jobs = s.SyncJobOpeningsToDatabase(ctx, OpeningsFrom(raw))
	}
	return res, nil
}

func joinFailures(storeErr, fileErr error) error {
	return fmt.Errorf("update content data: %w", errors.Join(storeErr, fileErr))
}

// JobFailure is one job opening that could not be stored.
type JobFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type JobsReport struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failures  []JobFailure `json:"failures"`
}

// SyncJobOpeningsToDatabase upserts each opening by its id. Failures are
// logged and recorded; the batch always runs to the end.
func (s *Service) SyncJobOpeningsToDatabase(ctx context.Context, openings []page.Content) *JobsReport {
	rep := &JobsReport{Failures: []JobFailure{}}
	fail := func(i int, id, reason string) {
		rep.Failures = append(rep.Failures, JobFailure{Index: i, ID: id, Error: reason})
		metrics.SyncItems.WithLabelValues("jobOpenings", "error").Inc()
		logger.With("syncJobOpenings", "").Warn().Int("index", i).Str("jobId", id).Str("reason", reason).Msg("job opening not stored")
	}
	for i, o := range openings {
		rep.Total++
		if o == nil {
			fail(i, "", "job opening is not an object")
			continue
		}
		id := OpeningID(o)
		if id == "" {
			fail(i, "", "job opening has no id")
			continue
		}
		doc := o.Clone()
		doc.Stamp(s.now())
		if err := s.repo.UpsertJobOpening(ctx, id, doc); err != nil {
			fail(i, id, err.Error())
			continue
		}
		rep.Succeeded++
		metrics.SyncItems.WithLabelValues("jobOpenings", "ok").Inc()
	}
	return rep
}

// GetContentData returns the stored reference data, falling back to the
// file. The second value names the source that answered.
func (s *Service) GetContentData(ctx context.Context) (page.Content, string, error) {
	doc, err := s.repo.GetReferenceData(ctx)
	if err == nil {
		return doc, page.SourceDatabase, nil
	}
	if !errors.Is(err, ErrNotFound) {
		logger.With("getContentData", "").Warn().Err(err).Msg("database read failed, using file")
	}
	doc, err = s.files.ReadDataFile()
	if err != nil {
		if filestore.IsAbsent(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return doc, page.SourceFile, nil
}

// ListJobOpenings returns the stored job openings.
func (s *Service) ListJobOpenings(ctx context.Context) ([]page.Content, error) {
	return s.repo.ListJobOpenings(ctx)
}

// OpeningsFrom converts a decoded jobOpenings value into documents. Items
// that are not objects come back as nil so the batch can report them.
func OpeningsFrom(v interface{}) []page.Content {
	switch t := v.(type) {
	case []page.Content:
		return t
	case []map[string]interface{}:
		out := make([]page.Content, len(t))
		for i, m := range t {
			out[i] = page.Content(m)
		}
		return out
	case []interface{}:
		out := make([]page.Content, len(t))
		for i, item := range t {
			switch m := item.(type) {
			case map[string]interface{}:
				out[i] = page.Content(m)
			case page.Content:
				out[i] = m
			}
		}
		return out
	}
	return nil
}

// OpeningID reads the opening's id, accepting strings and JSON numbers.
func OpeningID(o page.Content) string {
	switch id := o["id"].(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	}
	return ""
}
