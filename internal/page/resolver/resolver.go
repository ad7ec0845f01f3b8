// Package resolver answers page reads and writes across the document store
// and the page files according to a Policy.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/cache"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/internal/page/repository"
	"github.com/siteadmin/content-services/pkg/logger"
	"github.com/siteadmin/content-services/pkg/metrics"
)

var ErrNotFound = errors.New("page not found")

// SourceCache marks a read answered from the page cache.
const SourceCache = "cache"

type Source int

const (
	Database Source = iota
	File
)

type WriteStrategy int

const (
	// SyncWithFallback writes through the sync service and, when that fails,
	// retries the one store the deployment can still reach.
	SyncWithFallback WriteStrategy = iota
	// Independent upserts the record and, when writable, the file; only the
	// record write decides success.
	Independent
)

// Policy decides where reads go first, which records may be served, and how
// writes reach the stores.
type Policy struct {
	Name    string
	Primary Source
	// Gate filters records before they are served. Nil serves every record.
	Gate  func(*page.Record) bool
	Write WriteStrategy
}

var (
	Hybrid = Policy{Name: "hybrid", Primary: Database, Write: SyncWithFallback}

	Published = Policy{
		Name:    "published",
		Primary: Database,
		Gate:    func(r *page.Record) bool { return r.IsPublished },
		Write:   Independent,
	}
)

func (p Policy) order() []Source {
	if p.Primary == File {
		return []Source{File, Database}
	}
	return []Source{Database, File}
}

// Writer is the dual-store write path.
type Writer interface {
	UpdatePageContent(ctx context.Context, pageID string, update page.Content) (*contentsync.UpdateResult, error)
	UpdateFile(ctx context.Context, pageID string, update page.Content) (filestore.WriteResult, error)
	UpsertRecord(ctx context.Context, pageID string, update page.Content) (*page.Record, bool, error)
}

type Service struct {
	policy Policy
	repo   repository.Repository
	files  contentsync.FileStore
	writer Writer
	mode   environment.Mode
	cache  cache.Cache
}

type Option func(*Service)

// WithCache enables GetPageContentCached.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func New(policy Policy, repo repository.Repository, files contentsync.FileStore, writer Writer, mode environment.Mode, opts ...Option) *Service {
	s := &Service{policy: policy, repo: repo, files: files, writer: writer, mode: mode}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// GetPageContent returns the page document and the source that served it,
// or ErrNotFound once every source has been tried.
func (s *Service) GetPageContent(ctx context.Context, pageID string) (page.Content, string, error) {
	log := logger.With("getPageContent", pageID)
	for _, src := range s.policy.order() {
		switch src {
		case Database:
			rec, err := s.repo.FindByPageID(ctx, pageID)
			switch {
			case err == nil && (s.policy.Gate == nil || s.policy.Gate(rec)):
				metrics.ContentReads.WithLabelValues(s.policy.Name, page.SourceDatabase).Inc()
				return rec.Document(), page.SourceDatabase, nil
			case err == nil:
				log.Debug().Str("policy", s.policy.Name).Msg("record not servable, trying next source")
			case !errors.Is(err, repository.ErrNotFound):
				log.Warn().Err(err).Str("mode", s.mode.String()).Msg("database read failed")
			}
		case File:
			doc, err := s.files.ReadPage(pageID)
			if err == nil {
				if s.mode.Writable() {
					log.Debug().Msg("serving page from local file")
				} else {
					log.Debug().Msg("serving bundled page file in read-only deployment")
				}
				metrics.ContentReads.WithLabelValues(s.policy.Name, page.SourceFile).Inc()
				return doc, page.SourceFile, nil
			}
			if !errors.Is(err, filestore.ErrNotFound) {
				log.Warn().Err(err).Msg("page file unusable")
			}
		}
	}
	metrics.ContentReads.WithLabelValues(s.policy.Name, "none").Inc()
	return nil, "", ErrNotFound
}

// GetPageContentCached serves from the cache when possible and caches what
// GetPageContent finds. Misses are not cached.
func (s *Service) GetPageContentCached(ctx context.Context, pageID string) (page.Content, string, error) {
	if s.cache == nil {
		return s.GetPageContent(ctx, pageID)
	}
	if doc, ok := s.cache.Get(ctx, pageID); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return doc, SourceCache, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	doc, src, err := s.GetPageContent(ctx, pageID)
	if err != nil {
		return nil, "", err
	}
	s.cache.Set(ctx, pageID, doc)
	return doc, src, nil
}

// WriteOutcome reports where an update landed.
type WriteOutcome struct {
	PageID   string                `json:"pageId"`
	Record   *page.Record          `json:"record,omitempty"`
	File     filestore.WriteResult `json:"file"`
	Fallback bool                  `json:"fallback,omitempty"`
}

// UpdatePageContent applies update according to the policy's write strategy.
func (s *Service) UpdatePageContent(ctx context.Context, pageID string, update page.Content) (*WriteOutcome, error) {
	if s.policy.Write == Independent {
		return s.writeIndependent(ctx, pageID, update)
	}
	return s.writeWithFallback(ctx, pageID, update)
}

func (s *Service) writeWithFallback(ctx context.Context, pageID string, update page.Content) (*WriteOutcome, error) {
	log := logger.With("updatePageContent", pageID)
	res, err := s.writer.UpdatePageContent(ctx, pageID, update)
	if err == nil {
		return &WriteOutcome{PageID: pageID, Record: res.Record, File: res.File}, nil
	}
	log.Warn().Err(err).Str("mode", s.mode.String()).Msg("sync write failed, trying fallback")

	if !s.mode.Writable() {
		rec, ferr := s.repo.FindByPageID(ctx, pageID)
		if ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		updated, perr := s.repo.UpdatePartial(ctx, rec.ID, page.PatchFrom(update))
		if perr != nil {
			return nil, errors.Join(err, perr)
		}
		out := &WriteOutcome{PageID: pageID, Record: updated, Fallback: true}
		if res != nil {
			out.File = res.File
		}
		return out, nil
	}

	file, ferr := s.writer.UpdateFile(ctx, pageID, update)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	if file.Skipped {
		return nil, errors.Join(err, fmt.Errorf("file fallback skipped: %s", file.Reason))
	}
	return &WriteOutcome{PageID: pageID, File: file, Fallback: true}, nil
}

func (s *Service) writeIndependent(ctx context.Context, pageID string, update page.Content) (*WriteOutcome, error) {
	log := logger.With("updatePageContent", pageID)
	out := &WriteOutcome{PageID: pageID}

	rec, _, err := s.writer.UpsertRecord(ctx, pageID, update)
	if err != nil {
		log.Error().Err(err).Msg("database write failed")
	}
	out.Record = rec

	if s.mode.Writable() {
		file, ferr := s.writer.UpdateFile(ctx, pageID, update)
		if ferr != nil {
			log.Warn().Err(ferr).Msg("file write failed")
		}
		out.File = file
	} else {
		out.File = filestore.WriteResult{Skipped: true, Reason: "read-only deployment"}
	}
	return out, err
}

// GetAllPages lists pages from both stores. A record shadows a file with the
// same pageId. It fails only when neither store can be listed.
func (s *Service) GetAllPages(ctx context.Context) ([]page.Summary, error) {
	byID := map[string]page.Summary{}
	recs, dbErr := repository.ListAll(ctx, s.repo, repository.Filter{})
	for _, r := range recs {
		byID[r.PageID] = r.Summary()
	}
	files, fileErr := s.files.ListPages()
	for _, f := range files {
		if _, ok := byID[f.PageID]; !ok {
			byID[f.PageID] = f
		}
	}
	if dbErr != nil && fileErr != nil {
		return nil, errors.Join(dbErr, fileErr)
	}
	if dbErr != nil {
		logger.With("getAllPages", "").Warn().Err(dbErr).Msg("database listing failed, listing files only")
	}
	if fileErr != nil {
		logger.With("getAllPages", "").Warn().Err(fileErr).Msg("file listing failed, listing records only")
	}
	out := make([]page.Summary, 0, len(byID))
	for _, sum := range byID {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

// Stats counts pages by publication state.
type Stats struct {
	Total     int    `json:"total"`
	Published int    `json:"published"`
	Drafts    int    `json:"drafts"`
	Source    string `json:"source"`
}

// GetPageStats counts records, falling back to the page files and finally
// to zero counts. It never fails.
func (s *Service) GetPageStats(ctx context.Context) Stats {
	log := logger.With("getPageStats", "")
	published := true
	total, err := s.repo.Count(ctx, repository.Filter{})
	if err == nil {
		var pub int
		pub, err = s.repo.Count(ctx, repository.Filter{Published: &published})
		if err == nil {
			return Stats{Total: total, Published: pub, Drafts: total - pub, Source: page.SourceDatabase}
		}
	}
	log.Warn().Err(err).Msg("database stats failed, counting files")

	list, err := s.files.ListPages()
	if err != nil {
		log.Warn().Err(err).Msg("file stats failed")
		return Stats{Source: "none"}
	}
	st := Stats{Source: page.SourceFile}
	for _, sum := range list {
		if sum.Status != page.StatusOK {
			continue
		}
		st.Total++
		if sum.Published {
			st.Published++
		}
	}
	st.Drafts = st.Total - st.Published
	return st
}
