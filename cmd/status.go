package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
	"github.com/sells-group/lead-enrichment-worker/internal/store"
)

var statusJobID string
var statusRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and enrichment results",
	Long:  "Display work queue depth, in-flight count, per-status result tallies, and the most recent results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		q, err := initQueue()
		if err != nil {
			return err
		}
		defer func() { _ = q.Close() }()

		stats, err := q.Stats(ctx)
		if err != nil {
			return err
		}

		counts, err := st.CountResultsByStatus(ctx)
		if err != nil {
			return err
		}

		recent, err := st.ListResults(ctx, store.ResultFilter{
			JobID: statusJobID,
			Limit: statusRecent,
		})
		if err != nil {
			return err
		}

		fmt.Println("=== Enrichment Status ===")
		fmt.Printf("Queue length:       %d\n", stats.Length)
		fmt.Printf("In flight:          %d\n", stats.Pending)
		fmt.Println()

		fmt.Println("Results:")
		for _, status := range []model.ResultStatus{
			model.ResultStatusSucceeded,
			model.ResultStatusFailed,
			model.ResultStatusSkipped,
		} {
			fmt.Printf("  %-12s %d\n", status, counts[status])
		}
		fmt.Println()

		if statusJobID != "" {
			job, err := st.GetJob(ctx, statusJobID)
			if err != nil {
				return err
			}
			if job == nil {
				fmt.Printf("Job %s: not found\n\n", statusJobID)
			} else {
				fmt.Printf("Job %s (%s):\n", job.ID, job.Status)
				fmt.Printf("  Records found:   %d\n", job.RecordsFound)
				fmt.Printf("  Records queued:  %d\n", job.RecordsQueued)
				fmt.Printf("  Workers started: %d\n", job.WorkersStarted)
				fmt.Println()
			}
		}

		if len(recent) > 0 {
			fmt.Println("Recent results:")
			for _, r := range recent {
				fmt.Printf("  %-18s %-10s fields=%d conf=%.2f crm=%v %s\n",
					r.RecordID, r.Status, len(r.AppliedFields), r.Confidence, r.CRMUpdated,
					r.ProcessedAt.Format("2006-01-02 15:04:05"))
			}
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusJobID, "job", "", "show counters for a specific job ID")
	statusCmd.Flags().IntVar(&statusRecent, "recent", 10, "number of recent results to list")
	rootCmd.AddCommand(statusCmd)
}
