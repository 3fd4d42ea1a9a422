// Package store persists enrichment results, the shared content cache, and
// read-only job records, on SQLite or Postgres.
package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

// ResultFilter specifies criteria for listing enrichment results.
type ResultFilter struct {
	Status model.ResultStatus `json:"status,omitempty"`
	JobID  string             `json:"job_id,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the enrichment worker.
//
// Results are keyed by lead record ID and upserted: reprocessing a lead
// overwrites its previous result deterministically. The content cache is
// shared across worker instances with last-writer-wins semantics; an entry
// past its TTL is indistinguishable from an absent one.
type Store interface {
	// Results
	SaveResult(ctx context.Context, result *model.EnrichmentResult) error
	GetResult(ctx context.Context, recordID string) (*model.EnrichmentResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.EnrichmentResult, error)
	CountResultsByStatus(ctx context.Context) (map[model.ResultStatus]int, error)

	// Content cache
	GetCachedContent(ctx context.Context, siteKey string) (*model.SiteContent, error)
	SetCachedContent(ctx context.Context, siteKey string, content *model.SiteContent, ttl time.Duration) error
	DeleteExpiredContent(ctx context.Context) (int, error)

	// Jobs (written by the dispatcher, read-only here)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
