package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reconcileOnly []string

var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	GroupID: "sync",
	Short:   "Reconcile lead data sheets against the contact cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.reconcile(cmd.Context(), reconcileOnly)
		if report != nil {
			printReport(report)
		}
		return err
	},
}

var ingestCmd = &cobra.Command{
	Use:     "ingest",
	GroupID: "sync",
	Short:   "Copy CRM contacts into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		stats, err := a.ingest(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s Ingestion complete in %v\n", renderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Locations: %d (no token: %d, failed: %d)\n", stats.Locations, stats.NoToken, stats.Failed)
		fmt.Printf("   Contacts: %d\n", stats.Contacts)
		if stats.Tickets > 0 {
			fmt.Printf("   Tickets filed: %s\n", renderWarn(fmt.Sprint(stats.Tickets)))
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:     "refresh-tokens",
	GroupID: "sync",
	Short:   "Refresh every stored CRM token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.refreshTokens(cmd.Context())
		if err != nil {
			return err
		}
		mark := renderPass("✓")
		if stats.Failed > 0 {
			mark = renderWarn("⚠")
		}
		fmt.Printf("%s Refreshed %d tokens, %d failed\n", mark, stats.Refreshed, stats.Failed)
		return nil
	},
}

var directoryCmd = &cobra.Command{
	Use:     "directory [link]",
	GroupID: "sync",
	Short:   "Load locations from the directory sheet",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			a.cfg.Directory.Link = args[0]
		}
		stats, err := a.loadDirectory(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s Loaded %d locations from %d rows\n", renderPass("✓"), stats.Loaded, stats.Rows)
		fmt.Printf("   Excluded: %d  Incomplete: %d  Duplicates: %d\n", stats.Excluded, stats.Incomplete, stats.Duplicates)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringSliceVar(&reconcileOnly, "location", nil, "reconcile only these location ids")

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(directoryCmd)
}
