package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/John-Robertt/BRCal/internal/domain"
)

// PostgresWriter 把条目 upsert 到 releases 表（以 url 为唯一键）。
type PostgresWriter struct {
	db *sql.DB
}

// OpenPostgres 打开连接、确认可达并建表。
func OpenPostgres(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	pw := NewPostgresWriter(db)
	if err := pw.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func NewPostgresWriter(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

func (pw *PostgresWriter) Migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS releases (
			url             TEXT        PRIMARY KEY,
			title           TEXT        NOT NULL DEFAULT '',
			release_date    DATE,
			production_year INTEGER,
			category        TEXT        NOT NULL DEFAULT '',
			date_rule       TEXT        NOT NULL DEFAULT '',
			canonical       BOOLEAN     NOT NULL DEFAULT TRUE,
			duplicate_of    TEXT        NOT NULL DEFAULT '',
			run_id          TEXT        NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_releases_date     ON releases(release_date);
		CREATE INDEX IF NOT EXISTS idx_releases_category ON releases(category);
	`)
	return err
}

const upsertBatchSize = 50

// Write 分批 upsert；同一 url 再次导出时更新其余字段。
func (pw *PostgresWriter) Write(ctx context.Context, runID string, items []domain.Item, now time.Time) error {
	for i := 0; i < len(items); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := pw.upsertBatch(ctx, runID, items[i:end], now); err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}
	}
	return nil
}

const releaseColumns = 10

func (pw *PostgresWriter) upsertBatch(ctx context.Context, runID string, batch []domain.Item, now time.Time) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*releaseColumns)

	for idx, it := range batch {
		base := idx * releaseColumns
		ph := make([]string, releaseColumns)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		var date interface{}
		if it.HasDate() {
			date = it.ReleaseDate.Format("2006-01-02")
		}
		var prod interface{}
		if it.ProductionYear > 0 {
			prod = it.ProductionYear
		}
		valueArgs = append(valueArgs,
			it.URL, it.DisplayTitle(), date, prod, it.Category, it.DateRule,
			it.Canonical, it.DuplicateOf, runID, now.UTC())
	}

	query := fmt.Sprintf(`
		INSERT INTO releases (url, title, release_date, production_year, category, date_rule, canonical, duplicate_of, run_id, updated_at)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			release_date = EXCLUDED.release_date,
			production_year = EXCLUDED.production_year,
			category = EXCLUDED.category,
			date_rule = EXCLUDED.date_rule,
			canonical = EXCLUDED.canonical,
			duplicate_of = EXCLUDED.duplicate_of,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
