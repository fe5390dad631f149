package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/agenda-ingest/internal/adapter/api"
	"github.com/V4T54L/agenda-ingest/internal/adapter/api/handler"
	"github.com/V4T54L/agenda-ingest/internal/adapter/geocoding"
	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/adapter/repository/memory"
	"github.com/V4T54L/agenda-ingest/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/agenda-ingest/internal/adapter/repository/redis"
	"github.com/V4T54L/agenda-ingest/internal/adapter/repository/spool"
	"github.com/V4T54L/agenda-ingest/internal/adapter/repository/sqlite"
	"github.com/V4T54L/agenda-ingest/internal/adapter/source/bulk"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
	"github.com/V4T54L/agenda-ingest/internal/pkg/config"
	"github.com/V4T54L/agenda-ingest/internal/pkg/httpx"
	"github.com/V4T54L/agenda-ingest/internal/pkg/logger"
	"github.com/V4T54L/agenda-ingest/internal/usecase"
)

const sqliteScheme = "sqlite://"

// app holds everything one command run needs, built from Config.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *metrics.PipelineMetrics
	httpClient *http.Client

	db         *sql.DB
	repo       domain.EventRepository
	redis      *redis.Client
	spool      *spool.Repository
	normalizer *normalize.Normalizer
	ingest     *usecase.IngestEventsUseCase
	ops        *handler.OpsHandler
	opsServer  *http.Server
}

// loadConfig reads the environment and applies root flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.DatabaseURL != "" {
		cfg.DatabaseURL = opts.DatabaseURL
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	return cfg, nil
}

// newApp opens the store and builds the pipeline. The caller must call close.
func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:        cfg,
		logger:     log,
		registry:   reg,
		metrics:    metrics.NewPipelineMetrics(reg),
		httpClient: httpx.NewClient(60 * time.Second),
	}

	a.db, a.repo, err = openStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// openStore picks the driver from the URL scheme.
func openStore(ctx context.Context, url string, log *slog.Logger) (*sql.DB, domain.EventRepository, error) {
	if strings.HasPrefix(url, sqliteScheme) {
		db, err := sqlite.Open(strings.TrimPrefix(url, sqliteScheme))
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewEventRepository(db, log), nil
	}
	db, err := postgres.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return db, postgres.NewEventRepository(db, log), nil
}

// buildPipeline wires cache, geocoder, spool and use cases on top of the store.
func (a *app) buildPipeline(ctx context.Context) error {
	cfg := a.cfg

	columns, err := a.columns()
	if err != nil {
		return err
	}
	a.normalizer = normalize.New(normalize.Options{
		CardSelector:   cfg.ScrapeCardSelector,
		BrowserPrefix:  cfg.ScrapeSourcePrefix,
		BulkPrefix:     cfg.BulkSourcePrefix,
		DefaultCountry: cfg.DefaultCountry,
		Columns:        columns,
	})

	a.spool, err = spool.NewRepository(cfg.SpoolDir, cfg.SpoolSegmentSize, cfg.SpoolMaxDiskSize, a.logger)
	if err != nil {
		return err
	}
	if a.spool.Pending() {
		a.logger.Warn("Spool holds batches from an earlier run", "dir", cfg.SpoolDir)
		a.metrics.Spool(true)
	}

	var geocoder domain.Geocoder
	if cfg.ORSAPIKey != "" {
		geocoder = geocoding.NewClient(geocoding.Options{
			BaseURL:     cfg.ORSBaseURL,
			APIKey:      cfg.ORSAPIKey,
			CountryHint: cfg.GeocodeCountryHint,
			Timeout:     cfg.GeocodeTimeout,
		}, a.logger, a.metrics)
	} else {
		a.logger.Warn("ORS_API_KEY not set, events will be stored without coordinates")
	}

	enricher := usecase.NewEnrichEventsUseCase(geocoder, a.geocodeCache(ctx), usecase.EnrichOptions{
		BatchSize:   cfg.GeocodeBatchSize,
		BatchDelay:  cfg.GeocodeBatchDelay,
		MaxAttempts: cfg.GeocodeMaxAttempts,
		Backoff:     cfg.GeocodeBackoff,
		MaxBackoff:  cfg.GeocodeMaxBackoff,
		MaxRPM:      cfg.GeocodeMaxRPM,
	}, a.logger, a.metrics)
	store := usecase.NewStoreEventsUseCase(a.repo, a.spool, a.logger, a.metrics)
	a.ingest = usecase.NewIngestEventsUseCase(a.repo, a.normalizer, enricher, store, a.logger, a.metrics)
	return nil
}

func (a *app) columns() (map[normalize.Field][]string, error) {
	if a.cfg.BulkColumnsFile == "" {
		return nil, nil
	}
	columns, err := bulk.LoadColumns(a.cfg.BulkColumnsFile)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded extra column aliases", "file", a.cfg.BulkColumnsFile, "fields", len(columns))
	return columns, nil
}

// geocodeCache returns the Redis cache when REDIS_URL is set and reachable, the
// in-memory cache otherwise.
func (a *app) geocodeCache(ctx context.Context) domain.GeocodeCache {
	cfg := a.cfg
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.logger.Error("Failed to parse redis url, using in-memory geocode cache", "error", err)
		} else {
			client := redis.NewClient(redisOpts)
			if err := client.Ping(ctx).Err(); err != nil {
				a.logger.Warn("Could not connect to redis, using in-memory geocode cache", "error", err)
				client.Close()
			} else {
				a.redis = client
				return redisrepo.NewGeocodeCache(client, a.logger, cfg.GeocodeCacheTTL, cfg.GeocodeCacheNegTTL)
			}
		}
	}
	return memory.NewGeocodeCache(cfg.GeocodeCacheTTL, cfg.GeocodeCacheNegTTL)
}

// startOps serves /health, /status/last-run and /metrics when METRICS_ADDR is set.
func (a *app) startOps() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	checks := map[string]handler.Check{
		"database": a.db.PingContext,
	}
	if a.redis != nil {
		checks["geocode_cache"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	a.ops = handler.NewOpsHandler(checks, a.logger)
	a.opsServer = &http.Server{
		Addr:         a.cfg.MetricsAddr,
		Handler:      api.NewOpsRouter(a.ops, a.registry, a.logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		a.logger.Info("Starting ops server", "addr", a.opsServer.Addr)
		if err := a.opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Ops server failed", "error", err)
		}
	}()
}

func (a *app) recordRun(report *usecase.RunReport, err error) {
	if a.ops != nil && report != nil {
		a.ops.RecordRun(report, err)
	}
}

func (a *app) close() {
	if a.opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.opsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Ops server shutdown failed", "error", err)
		}
		cancel()
	}
	if a.spool != nil {
		if err := a.spool.Close(); err != nil {
			a.logger.Error("Failed to close spool", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
