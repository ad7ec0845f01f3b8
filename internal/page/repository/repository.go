package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/siteadmin/content-services/internal/page"
)

var (
	ErrNotFound = errors.New("page record not found")
	ErrConflict = errors.New("page record already exists")
)

// Repository is the document store for page records, keyed by pageId.
type Repository interface {
	FindByPageID(ctx context.Context, pageID string) (*page.Record, error)
	FindByID(ctx context.Context, id string) (*page.Record, error)
	List(ctx context.Context, f Filter, p Pagination) ([]*page.Record, error)
	Count(ctx context.Context, f Filter) (int, error)
	Create(ctx context.Context, r *page.Record) (*page.Record, error)
	UpdateFull(ctx context.Context, id string, r *page.Record) (*page.Record, error)
	UpdatePartial(ctx context.Context, id string, p page.Patch) (*page.Record, error)
}

// Filter narrows List and Count. Zero value matches everything.
type Filter struct {
	Published *bool
	PageIDs   []string
}

func (f Filter) match(r *page.Record) bool {
	if f.Published != nil && r.IsPublished != *f.Published {
		return false
	}
	if len(f.PageIDs) == 0 {
		return true
	}
	for _, id := range f.PageIDs {
		if id == r.PageID {
			return true
		}
	}
	return false
}

// Pagination of List. Limit <= 0 means no limit.
type Pagination struct {
	Offset int
	Limit  int
}

func (p Pagination) window(n int) (int, int) {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.Limit > 0 && start+p.Limit < n {
		end = start + p.Limit
	}
	return start, end
}

// ListAll pages through every record matching f.
func ListAll(ctx context.Context, repo Repository, f Filter) ([]*page.Record, error) {
	const pageSize = 100
	var out []*page.Record
	for offset := 0; ; offset += pageSize {
		batch, err := repo.List(ctx, f, Pagination{Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < pageSize {
			return out, nil
		}
	}
}

func sortByPageID(recs []*page.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].PageID < recs[j].PageID })
}
