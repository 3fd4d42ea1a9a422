package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
	"github.com/sells-group/lead-enrichment-worker/internal/resilience"
	"github.com/sells-group/lead-enrichment-worker/internal/store"
	"github.com/sells-group/lead-enrichment-worker/pkg/salesforce"
)

// Receiver is the queue surface the worker loop needs.
type Receiver interface {
	Receive(ctx context.Context) (*model.WorkItem, error)
	Ack(ctx context.Context, receiptID string) error
}

// ContentFetcher acquires site content for a lead's website.
type ContentFetcher interface {
	Fetch(ctx context.Context, website string) (*model.SiteContent, int, error)
}

// CandidateExtractor produces an enrichment candidate from site content.
type CandidateExtractor interface {
	Extract(ctx context.Context, lead model.Lead, content *model.SiteContent) (*model.Candidate, error)
}

// WorkerConfig configures the worker loop.
type WorkerConfig struct {
	// PollInterval is the blocking-receive duration of one poll. Used to
	// convert the idle timeout into an idle poll count.
	PollInterval time.Duration
	// IdleTimeout is how long the queue must stay empty before the worker
	// shuts itself down. Only honored when AutoShutdown is set.
	IdleTimeout  time.Duration
	AutoShutdown bool
	// UpdateCRMDefault is used when a work item does not carry its own
	// update_crm parameter.
	UpdateCRMDefault bool
	// MinConfidence below which qualifying fields are persisted locally but
	// not written to the CRM. 0 disables the gate.
	MinConfidence float64
}

// Worker is the queue-driven enrichment loop: receive one lead, fetch its
// site, extract, reconcile, persist, update the CRM, acknowledge.
type Worker struct {
	receiver  Receiver
	store     store.Store
	fetcher   ContentFetcher
	extractor CandidateExtractor
	sf        salesforce.Client
	cfg       WorkerConfig

	processed int
}

// NewWorker wires up a Worker. Zero PollInterval and IdleTimeout fall back
// to 20s and 5m.
func NewWorker(receiver Receiver, st store.Store, fetcher ContentFetcher, extractor CandidateExtractor, sf salesforce.Client, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Worker{
		receiver:  receiver,
		store:     st,
		fetcher:   fetcher,
		extractor: extractor,
		sf:        sf,
		cfg:       cfg,
	}
}

// Processed returns the number of items brought to a terminal, acknowledged
// state since the worker started.
func (w *Worker) Processed() int {
	return w.processed
}

// Run polls until the context is cancelled or, with auto-shutdown enabled,
// until the queue has been empty for the idle timeout. An in-flight item
// always runs to completion; cancellation is only observed between items.
func (w *Worker) Run(ctx context.Context) error {
	idleLimit := int(w.cfg.IdleTimeout / w.cfg.PollInterval)
	if idleLimit < 1 {
		idleLimit = 1
	}
	idlePolls := 0

	zap.L().Info("worker: started",
		zap.Bool("auto_shutdown", w.cfg.AutoShutdown),
		zap.Duration("idle_timeout", w.cfg.IdleTimeout),
	)

	for {
		if ctx.Err() != nil {
			zap.L().Info("worker: shutdown signal received",
				zap.Int("processed_total", w.processed),
			)
			return nil
		}

		item, err := w.receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zap.L().Error("worker: receive failed", zap.Error(err))
			if sleepErr := sleepCtx(ctx, time.Second); sleepErr != nil {
				continue
			}
			continue
		}

		if item == nil {
			idlePolls++
			if w.cfg.AutoShutdown && idlePolls >= idleLimit {
				zap.L().Info("worker: queue idle, shutting down",
					zap.Duration("idle_for", time.Duration(idlePolls)*w.cfg.PollInterval),
					zap.Int("processed_total", w.processed),
				)
				return nil
			}
			continue
		}
		idlePolls = 0

		// Detach from the shutdown signal: a received item runs to
		// completion even if SIGTERM arrives mid-flight.
		itemCtx := context.WithoutCancel(ctx)
		if w.process(itemCtx, item) {
			if ackErr := w.receiver.Ack(itemCtx, item.ReceiptID); ackErr != nil {
				zap.L().Warn("worker: ack failed, item may be redelivered",
					zap.String("record_id", item.Lead.RecordID),
					zap.Error(ackErr),
				)
			}
			w.processed++
		}
	}
}

// process runs one work item to a terminal state and reports whether the
// queue message should be acknowledged. False means the failure is worth a
// redelivery: fetch budget exhausted, extraction infrastructure failure, or
// the result could not be persisted.
func (w *Worker) process(ctx context.Context, item *model.WorkItem) bool {
	lead := item.Lead
	result := &model.EnrichmentResult{
		RecordID:   lead.RecordID,
		JobID:      item.JobID,
		Lead:       lead,
		Source:     model.SourceTag,
		ReceivedAt: time.Now().UTC(),
	}

	zap.L().Info("worker: processing lead",
		zap.String("record_id", lead.RecordID),
		zap.String("company", lead.Company),
		zap.String("job_id", item.JobID),
	)

	if lead.Website == "" {
		result.Status = model.ResultStatusSkipped
		result.Error = "lead has no website"
		return w.finish(ctx, result, true)
	}

	content, attempts, err := w.fetcher.Fetch(ctx, lead.Website)
	result.FetchAttempts = attempts
	if err != nil {
		if attempts == 0 {
			// The address never produced a request; retrying cannot help.
			result.Status = model.ResultStatusSkipped
			result.Error = err.Error()
			return w.finish(ctx, result, true)
		}
		result.Status = model.ResultStatusFailed
		result.Error = err.Error()
		return w.finish(ctx, result, false)
	}

	cand, err := w.extractor.Extract(ctx, lead, content)
	if err != nil {
		result.Status = model.ResultStatusFailed
		result.Error = err.Error()
		return w.finish(ctx, result, !IsInfraError(err))
	}

	result.Confidence = cand.Confidence
	result.Reasoning = cand.Reasoning
	result.Status = model.ResultStatusSucceeded
	result.AppliedFields = BuildUpdate(lead, *cand, time.Now())

	if len(result.AppliedFields) > 0 && w.shouldUpdateCRM(item, cand.Confidence) {
		if crmErr := w.updateCRM(ctx, lead.RecordID, result.AppliedFields); crmErr != nil {
			result.CRMError = crmErr.Error()
			zap.L().Warn("worker: CRM update failed, result kept locally",
				zap.String("record_id", lead.RecordID),
				zap.Error(crmErr),
			)
		} else {
			result.CRMUpdated = true
		}
	}

	return w.finish(ctx, result, true)
}

// shouldUpdateCRM resolves the per-item update_crm parameter against the
// configured default and applies the confidence gate.
func (w *Worker) shouldUpdateCRM(item *model.WorkItem, confidence float64) bool {
	if w.sf == nil {
		return false
	}
	update := w.cfg.UpdateCRMDefault
	if item.Params.UpdateCRM != nil {
		update = *item.Params.UpdateCRM
	}
	if !update {
		return false
	}
	if w.cfg.MinConfidence > 0 && confidence < w.cfg.MinConfidence {
		zap.L().Info("worker: confidence below threshold, skipping CRM write",
			zap.String("record_id", item.Lead.RecordID),
			zap.Float64("confidence", confidence),
			zap.Float64("min_confidence", w.cfg.MinConfidence),
		)
		return false
	}
	return true
}

func (w *Worker) updateCRM(ctx context.Context, recordID string, fields map[string]any) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("salesforce", "update lead")
	return resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return salesforce.UpdateLead(ctx, w.sf, recordID, fields)
	})
}

// finish persists the result and returns the final ack decision. A result
// that cannot be persisted forces a redelivery regardless of outcome.
func (w *Worker) finish(ctx context.Context, result *model.EnrichmentResult, ack bool) bool {
	result.ProcessedAt = time.Now().UTC()

	if err := w.store.SaveResult(ctx, result); err != nil {
		zap.L().Error("worker: failed to persist result",
			zap.String("record_id", result.RecordID),
			zap.Error(err),
		)
		return false
	}

	zap.L().Info("worker: lead finished",
		zap.String("record_id", result.RecordID),
		zap.String("status", string(result.Status)),
		zap.Int("applied_fields", len(result.AppliedFields)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("crm_updated", result.CRMUpdated),
		zap.Int("fetch_attempts", result.FetchAttempts),
	)
	return ack
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
