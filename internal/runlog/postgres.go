package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/siteadmin/content-services/internal/page/repository"
)

// PostgresStore keeps runs in a relational table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if strings.TrimSpace(table) == "" {
		table = "sync_runs"
	}
	return &PostgresStore{db: db, table: table}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`, repository.QuoteIdentifier(p.table)))
	return err
}

const runColumns = "run_id, job, status, started_at, finished_at, total, succeeded, failed, error"

func (p *PostgresStore) Save(ctx context.Context, r *Run) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at,
		total = EXCLUDED.total, succeeded = EXCLUDED.succeeded, failed = EXCLUDED.failed, error = EXCLUDED.error`,
		repository.QuoteIdentifier(p.table), runColumns)
	_, err := p.db.ExecContext(ctx, query, r.RunID, r.Job, r.Status, r.StartedAt, r.FinishedAt, r.Total, r.Succeeded, r.Failed, r.Error)
	if err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	if err := s.Scan(&r.RunID, &r.Job, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Total, &r.Succeeded, &r.Failed, &r.Error); err != nil {
		return nil, err
	}
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	return &r, nil
}

func (p *PostgresStore) Load(ctx context.Context, runID string) (*Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = $1`, runColumns, repository.QuoteIdentifier(p.table))
	r, err := scanRun(p.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY started_at DESC LIMIT $1`, runColumns, repository.QuoteIdentifier(p.table))
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
