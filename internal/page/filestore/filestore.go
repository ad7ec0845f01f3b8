// Package filestore keeps one JSON file per page under a pages directory,
// plus a single reference-data file.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page"
)

var (
	ErrNotFound      = errors.New("page file not found")
	ErrInvalidPageID = errors.New("invalid page id")
)

// ParseError reports a page file that exists but is not a JSON object.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// WriteResult describes a write that did not fail. Skipped is set when the
// filesystem is read-only and nothing was persisted.
type WriteResult struct {
	Path    string
	Skipped bool
	Reason  string
}

// Options configures a Store.
type Options struct {
	PagesDir string
	DataFile string
	Mode     environment.Mode
	Now      func() time.Time
}

// Store reads and writes page documents on disk.
type Store struct {
	pagesDir string
	dataFile string
	mode     environment.Mode
	now      func() time.Time
}

func New(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{pagesDir: opts.PagesDir, dataFile: opts.DataFile, mode: opts.Mode, now: now}
}

// Mode reports the filesystem classification the store was built with.
func (s *Store) Mode() environment.Mode { return s.mode }

func (s *Store) pagePath(pageID string) (string, error) {
	if pageID == "" || pageID == "." || pageID == ".." || strings.ContainsAny(pageID, `/\`) || strings.Contains(pageID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPageID, pageID)
	}
	return filepath.Join(s.pagesDir, pageID+".json"), nil
}

// ReadPage loads {pagesDir}/{pageID}.json.
func (s *Store) ReadPage(pageID string) (page.Content, error) {
	path, err := s.pagePath(pageID)
	if err != nil {
		return nil, err
	}
	return readJSON(path)
}

// WritePage stamps lastModified and persists doc as the page's file.
func (s *Store) WritePage(pageID string, doc page.Content) (WriteResult, error) {
	path, err := s.pagePath(pageID)
	if err != nil {
		return WriteResult{}, err
	}
	out := doc.Clone()
	out[page.KeyPageID] = pageID
	out.Stamp(s.now())
	return s.write(path, out)
}

// ListPages parses every *.json file in the pages directory. Unparseable
// files are listed with StatusError rather than dropped.
func (s *Store) ListPages() ([]page.Summary, error) {
	entries, err := os.ReadDir(s.pagesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []page.Summary{}, nil
		}
		return nil, err
	}
	out := make([]page.Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		doc, err := readJSON(filepath.Join(s.pagesDir, name))
		if err != nil {
			out = append(out, page.Summary{PageID: id, Source: page.SourceFile, Status: page.StatusError, Error: err.Error()})
			continue
		}
		out = append(out, Summarize(id, doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

// Summarize lists a file document under pageID.
func Summarize(pageID string, doc page.Content) page.Summary {
	sum := page.Summary{
		PageID:      pageID,
		Title:       doc.Title(),
		Description: doc.Description(),
		Published:   doc.Published(),
		Source:      page.SourceFile,
		Status:      page.StatusOK,
	}
	if lm, ok := doc.LastModified(); ok {
		sum.LastModified = &lm
	}
	return sum
}

// ReadDataFile loads the reference-data document.
func (s *Store) ReadDataFile() (page.Content, error) {
	return readJSON(s.dataFile)
}

// WriteDataFile stamps and persists the reference-data document.
func (s *Store) WriteDataFile(doc page.Content) (WriteResult, error) {
	out := doc.Clone()
	out.Stamp(s.now())
	return s.write(s.dataFile, out)
}

func (s *Store) write(path string, doc page.Content) (WriteResult, error) {
	if !s.mode.Writable() {
		return WriteResult{Path: path, Skipped: true, Reason: "read-only deployment"}, nil
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WriteResult{}, err
	}
	b = append(b, '\n')
	if err := writeAtomic(path, b); err != nil {
		if errors.Is(err, syscall.EROFS) {
			return WriteResult{Path: path, Skipped: true, Reason: "read-only file system"}, nil
		}
		return WriteResult{}, err
	}
	return WriteResult{Path: path}, nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string) (page.Content, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc page.Content
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if doc == nil {
		return nil, &ParseError{Path: path, Err: errors.New("document is null")}
	}
	return doc, nil
}

// IsAbsent reports whether err means the page has no usable file.
func IsAbsent(err error) bool {
	var pe *ParseError
	return errors.Is(err, ErrNotFound) || errors.As(err, &pe)
}
