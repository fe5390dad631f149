// Package cli builds the eventingest command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	LogLevel    string // overrides LOG_LEVEL when set
	DatabaseURL string // overrides DATABASE_URL when set
	MetricsAddr string // overrides METRICS_ADDR when set
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "eventingest",
		Short:         "Ingest public event listings into the events store",
		Long:          "Fetches event listings from the live agenda site or a published open-data export, normalizes and geocodes them, and stores each event once.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "postgres://... or sqlite://path")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address of the ops server exposing /health and /metrics")

	cmd.AddCommand(NewScrapeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReplaySpoolCommand(opts))

	return cmd
}
