package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rgm-labs/leadsync/internal/schema"
	"github.com/rgm-labs/leadsync/internal/state"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "state",
	Short:   "Show per-location sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		counts, err := a.store.CountLocationsByStatus(ctx)
		if err != nil {
			return err
		}
		locations, err := a.store.ListLocations(ctx)
		if err != nil {
			return err
		}
		runs, err := a.store.ListRuns(ctx, 5)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s leadsync status\n\n", renderAccent("📊"))
		fmt.Printf("   Database: %s\n", a.store.Path())
		fmt.Printf("   Locations: %d  (%s done, %s error, %s not started)\n\n",
			len(locations),
			renderPass(strconv.Itoa(counts[schema.StatusDone])),
			renderFail(strconv.Itoa(counts[schema.StatusError])),
			renderMuted(strconv.Itoa(counts[schema.StatusNotStarted])),
		)

		if len(locations) > 0 {
			fmt.Println(locationTable(locations))
		}

		if len(runs) > 0 {
			fmt.Printf("\n%s Recent runs\n", renderAccent("🕑"))
			for _, r := range runs {
				fmt.Printf("   %s  %s  done=%d errored=%d skipped=%d\n",
					r.StartedAt.Local().Format(time.DateTime), renderMuted(r.RunID), r.Done, r.Errored, r.Skipped)
			}
		}
		fmt.Println()
		return nil
	},
}

func locationTable(locations []*schema.Location) string {
	rows := make([][]string, 0, len(locations))
	for _, l := range locations {
		updated := ""
		if !l.UpdatedAt.IsZero() {
			updated = l.UpdatedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{l.ID, string(l.Status), strconv.Itoa(l.Attempts), updated, truncate(l.LastError, 60)})
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("LOCATION", "STATUS", "ATTEMPTS", "UPDATED", "LAST ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 1 && row >= 0 && row < len(rows) {
				switch schema.SyncStatus(rows[row][1]) {
				case schema.StatusDone:
					return cell.Foreground(passStyle.GetForeground())
				case schema.StatusError:
					return cell.Foreground(failStyle.GetForeground())
				}
			}
			return cell
		}).
		String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

var resetAll bool

var resetCmd = &cobra.Command{
	Use:     "reset [location-id...]",
	GroupID: "state",
	Short:   "Mark locations not started so the next run redoes them",
	Long: `Reset the sync status of the given locations to not_started.

Locations marked done are never reprocessed; use this after fixing a sheet
or to force a full redo. With --all every location is reset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !resetAll {
			return fmt.Errorf("give location ids or --all")
		}
		if len(args) > 0 && resetAll {
			return fmt.Errorf("--all cannot be combined with location ids")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := state.NewTracker(a.store).Reset(cmd.Context(), args...)
		if err != nil {
			return err
		}
		if len(args) > 0 && n < len(args) {
			fmt.Printf("%s %d of %d ids were not registered\n", renderWarn("⚠"), len(args)-n, len(args))
		}
		fmt.Printf("%s Reset %d locations\n", renderPass("✓"), n)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every location")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}
