package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	// postgres://... or sqlite://path
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	// Empty keeps the geocode cache in process memory.
	RedisURL       string `env:"REDIS_URL"`
	MetricsAddr    string `env:"METRICS_ADDR"`
	DefaultCountry string `env:"DEFAULT_COUNTRY" envDefault:"France"`

	ORSAPIKey          string        `env:"ORS_API_KEY"`
	ORSBaseURL         string        `env:"ORS_BASE_URL" envDefault:"https://api.openrouteservice.org"`
	GeocodeCountryHint string        `env:"GEOCODE_COUNTRY_HINT" envDefault:"FR"`
	GeocodeBatchSize   int           `env:"GEOCODE_BATCH_SIZE" envDefault:"10"`
	GeocodeBatchDelay  time.Duration `env:"GEOCODE_BATCH_DELAY" envDefault:"15s"`
	GeocodeMaxAttempts int           `env:"GEOCODE_MAX_ATTEMPTS" envDefault:"3"`
	GeocodeBackoff     time.Duration `env:"GEOCODE_BACKOFF" envDefault:"2s"`
	GeocodeMaxBackoff  time.Duration `env:"GEOCODE_MAX_BACKOFF" envDefault:"10s"`
	GeocodeTimeout     time.Duration `env:"GEOCODE_TIMEOUT" envDefault:"10s"`
	GeocodeMaxRPM      int           `env:"GEOCODE_MAX_RPM" envDefault:"0"`
	GeocodeCacheTTL    time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"720h"`
	GeocodeCacheNegTTL time.Duration `env:"GEOCODE_CACHE_NEGATIVE_TTL" envDefault:"24h"`

	ScrapeBaseURL       string        `env:"SCRAPE_BASE_URL" envDefault:"https://www.infolocale.fr"`
	ScrapeRegionURL     string        `env:"SCRAPE_REGION_URL_TEMPLATE" envDefault:"{base_url}/evenements/{region}"`
	ScrapeSourcePrefix  string        `env:"SCRAPE_SOURCE_PREFIX" envDefault:"infolocale"`
	ScrapeCardSelector  string        `env:"SCRAPE_CARD_SELECTOR" envDefault:".memo-card"`
	ScrapeUserAgent     string        `env:"SCRAPE_USER_AGENT" envDefault:"InfoLocaleScraper/1.0 (Educational Project)"`
	ScrapeWaitTimeout   time.Duration `env:"SCRAPE_WAIT_TIMEOUT" envDefault:"15s"`
	ScrapeLazyLoadWait  time.Duration `env:"SCRAPE_LAZY_LOAD_WAIT" envDefault:"1s"`
	ScrapeParallelPages bool          `env:"SCRAPE_PARALLEL_PAGES" envDefault:"false"`
	ScrapeMaxWorkers    int           `env:"SCRAPE_MAX_WORKERS" envDefault:"3"`
	ScrapeMaxPages      int           `env:"SCRAPE_MAX_PAGES" envDefault:"5"`
	ChromePath          string        `env:"CHROME_PATH"`

	OpenDataDatasetAPI  string `env:"OPENDATA_DATASET_API" envDefault:"https://www.data.gouv.fr/api/1/datasets/donnees-evenementielles-infolocale/"`
	OpenDataRecordsAPI  string `env:"OPENDATA_RECORDS_API" envDefault:"https://datainfolocale.opendatasoft.com/api/explore/v2.1/catalog/datasets/agenda_culturel/records"`
	OpenDataDownloadDir string `env:"OPENDATA_DOWNLOAD_DIR" envDefault:"data"`
	BulkBatchSize       int    `env:"BULK_BATCH_SIZE" envDefault:"100"`
	BulkColumnsFile     string `env:"BULK_COLUMNS_FILE"`
	BulkSourcePrefix    string `env:"BULK_SOURCE_PREFIX" envDefault:"opendata"`

	SpoolDir         string `env:"SPOOL_DIR" envDefault:"data/spool"`
	SpoolSegmentSize int64  `env:"SPOOL_SEGMENT_SIZE_BYTES" envDefault:"16777216"`  // 16MB
	SpoolMaxDiskSize int64  `env:"SPOOL_MAX_DISK_SIZE_BYTES" envDefault:"268435456"` // 256MB
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
