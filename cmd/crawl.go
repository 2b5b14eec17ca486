package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	var (
		keyword     string
		maxPages    int
		maxPostings int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one harvest to completion",
		Long: `Runs a single harvest with the configured search, stopping when the
results run out, the page limit or the posting cap is reached, or the
process is interrupted. Prints the run result and store totals.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			params := a.DefaultParams()
			if cmd.Flags().Changed("keyword") {
				params.Query.Keyword = keyword
			}
			if cmd.Flags().Changed("max-pages") {
				params.MaxPages = maxPages
			}
			if cmd.Flags().Changed("max-postings") {
				params.MaxPostings = maxPostings
			}

			result, err := a.Harvester.Run(ctx, params)
			if err != nil {
				return fmt.Errorf("run harvest: %w", err)
			}

			logger := zap.L()
			counts, err := a.Store.Counts(cmd.Context())
			if err != nil {
				logger.Warn("count stored rows failed", zap.Error(err))
			}
			logger.Info("harvest complete",
				zap.String("run_id", result.RunID),
				zap.String("stop_reason", string(result.StopReason)),
				zap.Int("collected", result.Collected),
				zap.Int("pages_visited", result.PagesVisited),
				zap.Int("pages_failed", result.PagesFailed),
				zap.Int("postings_failed", result.PostingsFailed),
				zap.Int("detail_unavailable", result.DetailUnavailable),
				zap.Int64("companies_total", counts.Companies),
				zap.Int64("postings_total", counts.Postings),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "collected %d postings (%s)\n", result.Collected, result.StopReason)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyword, "keyword", "", "search keyword (overrides harvest.keyword)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum result pages to visit")
	cmd.Flags().IntVar(&maxPostings, "max-postings", 0, "maximum postings to collect, 0 for no cap")
	return cmd
}
