package contentdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/repository"
)

// PostgresRepo keeps reference data as a keyed jsonb row and job openings
// as one jsonb row per opening id.
type PostgresRepo struct {
	db        *sql.DB
	dataTable string
	jobTable  string
	now       func() time.Time
}

func NewPostgresRepo(db *sql.DB, dataTable, jobTable string) *PostgresRepo {
	if strings.TrimSpace(dataTable) == "" {
		dataTable = "content_data"
	}
	if strings.TrimSpace(jobTable) == "" {
		jobTable = "job_openings"
	}
	return &PostgresRepo{db: db, dataTable: dataTable, jobTable: jobTable, now: time.Now}
}

// Migrate creates both tables when missing.
func (p *PostgresRepo) Migrate(ctx context.Context) error {
	for _, stmt := range []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, repository.QuoteIdentifier(p.dataTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, repository.QuoteIdentifier(p.jobTable)),
	} {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresRepo) GetReferenceData(ctx context.Context) (page.Content, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE key = $1`, repository.QuoteIdentifier(p.dataTable))
	var raw []byte
	err := p.db.QueryRowContext(ctx, query, referenceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeContent(raw)
}

func (p *PostgresRepo) UpsertReferenceData(ctx context.Context, doc page.Content) error {
	return p.upsert(ctx, p.dataTable, "key", referenceID, doc)
}

func (p *PostgresRepo) UpsertJobOpening(ctx context.Context, id string, doc page.Content) error {
	return p.upsert(ctx, p.jobTable, "id", id, doc)
}

func (p *PostgresRepo) upsert(ctx context.Context, table, keyCol, key string, doc page.Content) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s, content, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (%[2]s) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		repository.QuoteIdentifier(table), keyCol)
	_, err = p.db.ExecContext(ctx, query, key, raw, p.now().UTC())
	return err
}

func (p *PostgresRepo) ListJobOpenings(ctx context.Context) ([]page.Content, error) {
	query := fmt.Sprintf(`SELECT content FROM %s ORDER BY id`, repository.QuoteIdentifier(p.jobTable))
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []page.Content{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeContent(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func decodeContent(raw []byte) (page.Content, error) {
	var doc page.Content
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = page.Content{}
	}
	return doc, nil
}
