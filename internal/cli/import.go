package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/adapter/source/bulk"
	"github.com/V4T54L/agenda-ingest/internal/dedup"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/usecase"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	File       string
	Records    bool
	Where      string
	MaxRecords int
	ChunkSize  int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import listings from a published open-data export",
		Long: `Stream rows from a CSV or JSON export, normalize them and store the new ones
chunk by chunk.

Without --file or --records the CSV resource of the configured data.gouv.fr
dataset is downloaded to OPENDATA_DOWNLOAD_DIR first.

Examples:
  eventingest import --file data/agenda.csv
  eventingest import --records --where "commune='Rennes'" --max-records 500
  eventingest import`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "local CSV or JSON file")
	cmd.Flags().BoolVar(&opts.Records, "records", false, "page through the OpenDataSoft records API")
	cmd.Flags().StringVar(&opts.Where, "where", "", "records API filter expression")
	cmd.Flags().IntVar(&opts.MaxRecords, "max-records", 0, "stop after this many rows (0 = all)")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "rows per chunk (default BULK_BATCH_SIZE)")
	cmd.MarkFlagsMutuallyExclusive("file", "records")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.buildPipeline(ctx); err != nil {
		return err
	}
	a.startOps()

	bulkOpts := bulk.Options{ChunkSize: a.cfg.BulkBatchSize, MaxRecords: opts.MaxRecords}
	if opts.ChunkSize > 0 {
		bulkOpts.ChunkSize = opts.ChunkSize
	}

	build := func(*dedup.Keyer) (source.Source, error) {
		switch {
		case opts.Records:
			return bulk.NewRecordsSource(a.cfg.OpenDataRecordsAPI, opts.Where, a.httpClient, bulkOpts, a.logger), nil
		case opts.File != "":
			return bulk.OpenFile(opts.File, bulkOpts)
		default:
			path, err := bulk.NewDatasetDownloader(a.cfg.OpenDataDatasetAPI, a.cfg.OpenDataDownloadDir, a.httpClient, a.logger).Download(ctx)
			if err != nil {
				return nil, err
			}
			return bulk.OpenFile(path, bulkOpts)
		}
	}

	report, err := a.ingest.Run(ctx, usecase.RunOptions{Mode: "import", Source: domain.SourceBulk, Streaming: true}, build)
	a.recordRun(report, err)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d new events stored (%d rows read, %d skipped)\n", report.Inserted, report.Fragments, report.Skipped)
	return nil
}
