package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgm-labs/leadsync/internal/daemon"
	"github.com/rgm-labs/leadsync/internal/reconcile"
)

var jobOpts jobOptions

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "sync",
	Short:   "Run the full batch job once",
	Long: `Run every step of the batch job once:
  1. Refresh CRM tokens
  2. Load locations from the directory sheet
  3. Ingest CRM contacts into the local cache
  4. Reconcile every lead data sheet not yet done`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		report, err := a.runJob(cmd.Context(), jobOpts)
		if report != nil {
			printReport(report)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s Run complete in %v\n", renderPass("✓"), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the batch job periodically",
	Long: `Run the full batch job now and then every --interval until interrupted.

A cycle never starts while the previous one is still running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		interval := cfg.Daemon.Interval
		if daemonInterval > 0 {
			interval = daemonInterval
		}

		d, err := daemon.NewWithConfig(func(ctx context.Context) error {
			_, err := a.runJob(ctx, jobOpts)
			return err
		}, &daemon.Config{
			Interval: interval,
			Logger:   logger.With().Str("component", "daemon").Logger(),
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting leadsync daemon (every %s)\n", renderAccent("🚀"), interval)
		fmt.Printf("   Database: %s\n", a.store.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")
		return d.Start(cmd.Context())
	},
}

func printReport(r *reconcile.Report) {
	fmt.Printf("\n%s Run %s\n", renderAccent("📊"), renderMuted(r.RunID))
	for _, res := range r.Locations {
		switch res.Outcome {
		case reconcile.Written:
			line := fmt.Sprintf("%s %s: %d rows, %d matched, %d passed through, %d unmatched",
				renderPass("✓"), res.LocationID, res.Rows, res.Matched, res.PassedThrough, res.Unmatched)
			if res.Warning != "" {
				line += " " + renderWarn("(warning: "+res.Warning+")")
			}
			fmt.Println(line)
		case reconcile.Skipped:
			fmt.Printf("%s %s: already done\n", renderMuted("-"), res.LocationID)
		default:
			fmt.Fprintf(os.Stdout, "%s %s: %s: %v\n", renderFail("✗"), res.LocationID, res.Outcome, res.Err)
		}
	}
	fmt.Printf("\n   Done: %d  Errored: %d  Skipped: %d\n\n", r.Count(reconcile.Written), r.Errored(), r.Count(reconcile.Skipped))
}

func init() {
	for _, c := range []*cobra.Command{runCmd, daemonCmd} {
		c.Flags().BoolVar(&jobOpts.skipRefresh, "skip-refresh", false, "skip CRM token refresh")
		c.Flags().BoolVar(&jobOpts.skipDirectory, "skip-directory", false, "skip loading the directory sheet")
		c.Flags().BoolVar(&jobOpts.skipIngest, "skip-ingest", false, "skip CRM contact ingestion")
		c.Flags().BoolVar(&jobOpts.skipReconcile, "skip-reconcile", false, "skip sheet reconciliation")
		c.Flags().StringSliceVar(&jobOpts.only, "location", nil, "reconcile only these location ids")
	}
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "time between cycles (default from daemon.interval)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(daemonCmd)
}
