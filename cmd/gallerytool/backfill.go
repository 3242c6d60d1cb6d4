package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/promptgallery-backend/internal/services"
)

var backfillOpts services.BackfillOptions

var fillHashesCmd = &cobra.Command{
	Use:   "fill-hashes",
	Short: "Compute content hashes for assets stored before hashing existed",
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		stats, err := application.Services.Backfill.FillHashes(cmd.Context(), backfillOpts)
		printStats("fill-hashes", stats, time.Since(start))
		return err
	},
}

var embedBackfillCmd = &cobra.Command{
	Use:   "embed-backfill",
	Short: "Embed assets that have no vector for the active model",
	Long: `Embed every asset whose embedding is missing or was produced by a different model.

Assets previously marked as failed are skipped unless --include-failed is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		stats, err := application.Services.Backfill.EmbedMissing(cmd.Context(), backfillOpts)
		printStats("embed-backfill", stats, time.Since(start))
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{fillHashesCmd, embedBackfillCmd} {
		c.Flags().IntVar(&backfillOpts.BatchSize, "batch", 200, "rows loaded per batch")
		c.Flags().IntVar(&backfillOpts.Concurrency, "concurrency", 4, "assets processed in parallel")
		c.Flags().IntVar(&backfillOpts.Limit, "limit", 0, "stop after this many assets (0 = all)")
	}
	embedBackfillCmd.Flags().BoolVar(&backfillOpts.IncludeFailed, "include-failed", false, "retry assets whose last embedding attempt failed")
}

func printStats(job string, stats services.BackfillStats, took time.Duration) {
	fmt.Printf("%s: scanned=%d updated=%d failed=%d took=%s\n",
		job, stats.Scanned, stats.Updated, stats.Failed, took.Round(time.Millisecond))
}
