package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siteadmin/content-services/internal/page"
)

const pqUniqueViolation = "23505"

// PostgresRepo stores page records in a relational table:
// id, page_id (unique), title, description, last_modified, is_published,
// content (jsonb), created_at, updated_at.
type PostgresRepo struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewPostgresRepo(db *sql.DB, table string) *PostgresRepo {
	if strings.TrimSpace(table) == "" {
		table = "page_contents"
	}
	return &PostgresRepo{db: db, table: table, now: time.Now}
}

// Migrate creates the table when missing.
func (p *PostgresRepo) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			last_modified TIMESTAMPTZ NOT NULL,
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			content JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, QuoteIdentifier(p.table))
	_, err := p.db.ExecContext(ctx, query)
	return err
}

const pgColumns = "id, page_id, title, description, last_modified, is_published, content, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*page.Record, error) {
	var (
		r       page.Record
		content []byte
	)
	if err := row.Scan(&r.ID, &r.PageID, &r.Title, &r.Description, &r.LastModified, &r.IsPublished, &content, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Content = page.Content{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &r.Content); err != nil {
			return nil, fmt.Errorf("decode content of %s: %w", r.PageID, err)
		}
	}
	r.LastModified = r.LastModified.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (p *PostgresRepo) Create(ctx context.Context, r *page.Record) (*page.Record, error) {
	rec := r.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := p.now().UTC()
	rec.CreatedAt = now
	page.Patch{}.Apply(rec, now)
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, QuoteIdentifier(p.table), pgColumns)
	_, err = p.db.ExecContext(ctx, query, rec.ID, rec.PageID, rec.Title, rec.Description, rec.LastModified, rec.IsPublished, string(content), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return rec, nil
}

func (p *PostgresRepo) FindByID(ctx context.Context, id string) (*page.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, pgColumns, QuoteIdentifier(p.table))
	return scanRecord(p.db.QueryRowContext(ctx, query, id))
}

func (p *PostgresRepo) FindByPageID(ctx context.Context, pageID string) (*page.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE page_id = $1`, pgColumns, QuoteIdentifier(p.table))
	return scanRecord(p.db.QueryRowContext(ctx, query, pageID))
}

// where renders f as a WHERE clause with positional args starting at $1.
func (f Filter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Published != nil {
		args = append(args, *f.Published)
		conds = append(conds, fmt.Sprintf("is_published = $%d", len(args)))
	}
	if len(f.PageIDs) > 0 {
		args = append(args, pq.Array(f.PageIDs))
		conds = append(conds, fmt.Sprintf("page_id = ANY($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *PostgresRepo) List(ctx context.Context, f Filter, pg Pagination) ([]*page.Record, error) {
	where, args := f.where()
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY page_id`, pgColumns, QuoteIdentifier(p.table), where)
	if pg.Limit > 0 {
		args = append(args, pg.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if pg.Offset > 0 {
		args = append(args, pg.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*page.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, QuoteIdentifier(p.table), where)
	var n int
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (p *PostgresRepo) UpdateFull(ctx context.Context, id string, r *page.Record) (*page.Record, error) {
	return p.modify(ctx, id, func(cur *page.Record, now time.Time) *page.Record {
		rec := r.Clone()
		rec.ID = cur.ID
		rec.PageID = cur.PageID
		rec.CreatedAt = cur.CreatedAt
		page.Patch{}.Apply(rec, now)
		return rec
	})
}

func (p *PostgresRepo) UpdatePartial(ctx context.Context, id string, patch page.Patch) (*page.Record, error) {
	return p.modify(ctx, id, func(cur *page.Record, now time.Time) *page.Record {
		patch.Apply(cur, now)
		return cur
	})
}

// modify runs a read-modify-write of one row under a row lock.
func (p *PostgresRepo) modify(ctx context.Context, id string, fn func(cur *page.Record, now time.Time) *page.Record) (*page.Record, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, pgColumns, QuoteIdentifier(p.table))
	cur, err := scanRecord(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	rec := fn(cur, p.now().UTC())
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return nil, err
	}
	update := fmt.Sprintf(`UPDATE %s SET title = $2, description = $3, last_modified = $4, is_published = $5, content = $6, updated_at = $7 WHERE id = $1`, QuoteIdentifier(p.table))
	if _, err := tx.ExecContext(ctx, update, rec.ID, rec.Title, rec.Description, rec.LastModified, rec.IsPublished, string(content), rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// QuoteIdentifier quotes a SQL identifier for PostgreSQL.
func QuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
