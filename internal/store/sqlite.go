package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	record_id    TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL,
	status       TEXT NOT NULL,
	result       TEXT NOT NULL,
	received_at  DATETIME NOT NULL,
	processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS content_cache (
	site_key   TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	records_found   INTEGER NOT NULL DEFAULT 0,
	records_queued  INTEGER NOT NULL DEFAULT 0,
	workers_started INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
CREATE INDEX IF NOT EXISTS idx_content_cache_expires_at ON content_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, result *model.EnrichmentResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (record_id, job_id, status, result, received_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET
		   job_id = excluded.job_id,
		   status = excluded.status,
		   result = excluded.result,
		   received_at = excluded.received_at,
		   processed_at = excluded.processed_at`,
		result.RecordID, result.JobID, string(result.Status), string(resultJSON),
		result.ReceivedAt.UTC(), result.ProcessedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save result %s", result.RecordID)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, recordID string) (*model.EnrichmentResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result FROM results WHERE record_id = ?`, recordID,
	)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", recordID)
	}

	var result model.EnrichmentResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &result, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.EnrichmentResult, error) {
	query := `SELECT result FROM results WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	query += ` ORDER BY processed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var results []model.EnrichmentResult
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		var r model.EnrichmentResult
		if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) CountResultsByStatus(ctx context.Context) (map[model.ResultStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM results GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count results")
	}
	defer rows.Close()

	counts := make(map[model.ResultStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.ResultStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count results iterate")
}

func (s *SQLiteStore) GetCachedContent(ctx context.Context, siteKey string) (*model.SiteContent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content FROM content_cache
		 WHERE site_key = ? AND expires_at > datetime('now')`,
		siteKey,
	)

	var contentJSON string
	err := row.Scan(&contentJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached content")
	}

	var content model.SiteContent
	if err := json.Unmarshal([]byte(contentJSON), &content); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached content")
	}
	return &content, nil
}

func (s *SQLiteStore) SetCachedContent(ctx context.Context, siteKey string, content *model.SiteContent, ttl time.Duration) error {
	now := time.Now().UTC()
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal content")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_cache (site_key, content, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(site_key) DO UPDATE SET
		   content = excluded.content,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at`,
		siteKey, string(contentJSON), now, now.Add(ttl),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set cached content %s", siteKey)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredContent(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM content_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired content")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, records_found, records_queued, workers_started, created_at
		 FROM jobs WHERE id = ?`,
		jobID,
	)

	var j model.Job
	err := row.Scan(&j.ID, &j.Status, &j.RecordsFound, &j.RecordsQueued, &j.WorkersStarted, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return &j, nil
}
