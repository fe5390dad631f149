package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/adapter/source/browser"
	"github.com/V4T54L/agenda-ingest/internal/dedup"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/scheduler"
	"github.com/V4T54L/agenda-ingest/internal/usecase"
)

// ScrapeOptions holds flags for the scrape command.
type ScrapeOptions struct {
	*RootOptions
	Regions  string
	MaxPages int
	Parallel bool
	Workers  int
}

// NewScrapeCommand creates the scrape command.
func NewScrapeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScrapeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch listings from the live agenda site with headless Chrome",
		Long: `Fetch listing pages region by region, skip cards already stored, geocode the
new events and store them.

Regions are comma-separated slugs, absolute paths or full URLs. Without regions
the site-wide listing is used.

Examples:
  eventingest scrape --max-pages 3
  eventingest scrape --regions bretagne,pays-de-la-loire --parallel --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Regions, "regions", "", "comma-separated region tokens")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "pages per region (default SCRAPE_MAX_PAGES)")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "fetch pages with a worker pool (default SCRAPE_PARALLEL_PAGES)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker count in parallel mode (default SCRAPE_MAX_WORKERS)")

	return cmd
}

func runScrape(ctx context.Context, opts *ScrapeOptions, cmd *cobra.Command) error {
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

	cfg := a.cfg
	maxPages := cfg.ScrapeMaxPages
	if opts.MaxPages > 0 {
		maxPages = opts.MaxPages
	}
	workers := cfg.ScrapeMaxWorkers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	parallel := cfg.ScrapeParallelPages
	if cmd.Flags().Changed("parallel") {
		parallel = opts.Parallel
	}

	plan := browser.PagePlan(browser.RegionURLs(cfg.ScrapeBaseURL, cfg.ScrapeRegionURL, opts.Regions), maxPages)
	factory := browser.NewChromeFactory(browser.Options{
		ExecPath:     cfg.ChromePath,
		UserAgent:    cfg.ScrapeUserAgent,
		CardSelector: cfg.ScrapeCardSelector,
		WaitTimeout:  cfg.ScrapeWaitTimeout,
		LazyLoadWait: cfg.ScrapeLazyLoadWait,
	}, a.logger)

	build := func(known *dedup.Keyer) (source.Source, error) {
		fetcher := browser.NewFetcher(a.normalizer, known, a.logger, a.metrics)
		if parallel && maxPages > 1 {
			a.logger.Info("Fetching in parallel", "pages", len(browser.Flatten(plan)), "workers", workers)
			return scheduler.New(browser.Flatten(plan), workers, factory, fetcher, a.logger), nil
		}
		return browser.NewPager(plan, factory, fetcher, a.logger), nil
	}

	report, err := a.ingest.Run(ctx, usecase.RunOptions{Mode: "scrape", Source: domain.SourceBrowser}, build)
	a.recordRun(report, err)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d new events stored (%d fetched, %d already known)\n", report.Inserted, report.Fragments, report.Known)
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
