// Command leadsync tags lead data sheet rows with their CRM contact and
// location ids.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rgm-labs/leadsync/internal/config"
	"github.com/rgm-labs/leadsync/internal/logging"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	logger   = zerolog.Nop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "leadsync",
	Short: "Reconcile lead data sheets with CRM contacts",
	Long: `leadsync keeps each location's lead data sheet tagged with CRM ids.

A full run refreshes CRM tokens, loads the location directory, ingests
contacts into the local cache and reconciles every sheet not yet done.
Progress is kept per location in a local SQLite database, so an interrupted
run picks up where it stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.DB.Path = dbPath
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logger, closeLog = logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./leadsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "state", Title: "State Commands:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", renderFail("Error:"), err)
		stop()
		os.Exit(1)
	}
}
