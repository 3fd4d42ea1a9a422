package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment-worker/internal/enrich"
	"github.com/sells-group/lead-enrichment-worker/internal/fetch"
	"github.com/sells-group/lead-enrichment-worker/internal/queue"
	"github.com/sells-group/lead-enrichment-worker/pkg/anthropic"
	sfpkg "github.com/sells-group/lead-enrichment-worker/pkg/salesforce"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the enrichment worker loop",
	Long:  "Polls the work queue and processes leads until the queue idles out or a shutdown signal arrives. The in-flight lead always runs to completion.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		q, err := initQueue()
		if err != nil {
			return err
		}
		defer func() { _ = q.Close() }()

		consumer, err := queue.NewConsumer(ctx, q, queue.ConsumerConfig{
			ConsumerID:   consumerID(),
			BlockTimeout: time.Duration(cfg.Queue.PollSecs) * time.Second,
			Visibility:   time.Duration(cfg.Queue.VisibilityMins) * time.Minute,
		})
		if err != nil {
			return err
		}

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (ENRICH_ANTHROPIC_KEY)")
		}
		aiClient := anthropic.NewClient(cfg.Anthropic.Key)
		extractor := enrich.NewExtractor(
			aiClient,
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			time.Duration(cfg.Anthropic.RequestTimeoutS)*time.Second,
		)

		fetcher := fetch.New(st, fetch.Config{
			Timeouts: secondsToDurations(cfg.Fetch.TimeoutSecs),
			Backoffs: secondsToDurations(cfg.Fetch.BackoffSecs),
			CacheTTL: cfg.Fetch.CacheTTL(),
		})

		// Without a client ID the worker runs in local-only mode: results
		// are persisted but nothing is written back to the CRM.
		var sf sfpkg.Client
		if cfg.Salesforce.ClientID != "" {
			sf, err = initSalesforce()
			if err != nil {
				return err
			}
		} else {
			zap.L().Warn("worker: no salesforce credentials, CRM updates disabled")
		}

		worker := enrich.NewWorker(consumer, st, fetcher, extractor, sf, enrich.WorkerConfig{
			PollInterval:     time.Duration(cfg.Queue.PollSecs) * time.Second,
			IdleTimeout:      time.Duration(cfg.Worker.IdleTimeoutMins) * time.Minute,
			AutoShutdown:     cfg.Worker.AutoShutdown,
			UpdateCRMDefault: cfg.Salesforce.Commit,
			MinConfidence:    cfg.Enrich.MinConfidence,
		})

		return worker.Run(ctx)
	},
}

// consumerID returns the configured consumer name or derives a unique one
// from the hostname. Each worker instance needs its own name within the
// consumer group.
func consumerID() string {
	if cfg.Worker.ConsumerID != "" {
		return cfg.Worker.ConsumerID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

func secondsToDurations(secs []int) []time.Duration {
	out := make([]time.Duration, len(secs))
	for i, s := range secs {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
