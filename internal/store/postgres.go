package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. It is satisfied by
// pgxmock for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool builds a store around an existing pool (tests).
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS results (
	record_id    TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL,
	status       TEXT NOT NULL,
	result       JSONB NOT NULL,
	received_at  TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS content_cache (
	site_key   TEXT PRIMARY KEY,
	content    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	records_found   INTEGER NOT NULL DEFAULT 0,
	records_queued  INTEGER NOT NULL DEFAULT 0,
	workers_started INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
CREATE INDEX IF NOT EXISTS idx_results_job_id ON results(job_id);
CREATE INDEX IF NOT EXISTS idx_content_cache_expires_at ON content_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, result *model.EnrichmentResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (record_id, job_id, status, result, received_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (record_id) DO UPDATE SET
		   job_id = EXCLUDED.job_id,
		   status = EXCLUDED.status,
		   result = EXCLUDED.result,
		   received_at = EXCLUDED.received_at,
		   processed_at = EXCLUDED.processed_at`,
		result.RecordID, result.JobID, string(result.Status), string(resultJSON),
		result.ReceivedAt.UTC(), result.ProcessedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save result %s", result.RecordID)
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, recordID string) (*model.EnrichmentResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT result FROM results WHERE record_id = $1`, recordID,
	)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", recordID)
	}

	var result model.EnrichmentResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &result, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.EnrichmentResult, error) {
	query := `SELECT result FROM results WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		query += ` AND job_id = $` + itoa(len(args))
	}
	query += ` ORDER BY processed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var results []model.EnrichmentResult
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		var r model.EnrichmentResult
		if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) CountResultsByStatus(ctx context.Context) (map[model.ResultStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM results GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count results")
	}
	defer rows.Close()

	counts := make(map[model.ResultStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.ResultStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count results iterate")
}

func (s *PostgresStore) GetCachedContent(ctx context.Context, siteKey string) (*model.SiteContent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT content FROM content_cache WHERE site_key = $1 AND expires_at > now()`,
		siteKey,
	)

	var contentJSON string
	err := row.Scan(&contentJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached content")
	}

	var content model.SiteContent
	if err := json.Unmarshal([]byte(contentJSON), &content); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached content")
	}
	return &content, nil
}

func (s *PostgresStore) SetCachedContent(ctx context.Context, siteKey string, content *model.SiteContent, ttl time.Duration) error {
	now := time.Now().UTC()
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal content")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO content_cache (site_key, content, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (site_key) DO UPDATE SET
		   content = EXCLUDED.content,
		   fetched_at = EXCLUDED.fetched_at,
		   expires_at = EXCLUDED.expires_at`,
		siteKey, string(contentJSON), now, now.Add(ttl),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set cached content %s", siteKey)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredContent(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM content_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired content")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, records_found, records_queued, workers_started, created_at
		 FROM jobs WHERE id = $1`,
		jobID,
	)

	var j model.Job
	err := row.Scan(&j.ID, &j.Status, &j.RecordsFound, &j.RecordsQueued, &j.WorkersStarted, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return &j, nil
}

// itoa avoids importing strconv for tiny positional-arg indices.
func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
