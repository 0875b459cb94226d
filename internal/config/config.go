package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for newsoverlay.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Polygon   Polygon   `yaml:"polygon"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Warehouse Warehouse `yaml:"warehouse"`
	Fetch     Fetch     `yaml:"fetch"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds paths for local data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds dashboard listener configuration.
type Server struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	GRPCPort int           `yaml:"grpc_port"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Polygon holds credentials and limits for the Polygon REST API.
type Polygon struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	NewsLimit       int           `yaml:"news_limit"`
}

// Alpaca holds credentials for the Alpaca market-data API, used as an
// alternative bar source.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Warehouse selects and configures the table store.
type Warehouse struct {
	Driver          string `yaml:"driver"` // "sqlite" or "bigquery"
	Project         string `yaml:"project"`
	Dataset         string `yaml:"dataset"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Fetch controls what the fetch command pulls.
type Fetch struct {
	Symbols    []string `yaml:"symbols"`
	StartDate  string   `yaml:"start_date"`
	EndDate    string   `yaml:"end_date"`
	BarSource  string   `yaml:"bar_source"` // "polygon" or "alpaca"
	MaxWorkers int      `yaml:"max_workers"`
	Archive    bool     `yaml:"archive"` // also write parquet snapshots
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Warehouse drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBigQuery = "bigquery"
)

// Bar sources.
const (
	SourcePolygon = "polygon"
	SourceAlpaca  = "alpaca"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path: $OVERLAY_CONFIG or the default.
func Path() string {
	if p := os.Getenv("OVERLAY_CONFIG"); p != "" {
		return p
	}
	return "config/newsoverlay.yaml"
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}
	if v := os.Getenv("POLYGON_BASE_URL"); v != "" {
		cfg.Polygon.BaseURL = v
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("WAREHOUSE_DRIVER"); v != "" {
		cfg.Warehouse.Driver = v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		cfg.Warehouse.Project = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Warehouse.CredentialsFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = cfg.Storage.DataDir + "/newsoverlay.db"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CacheTTL == 0 {
		cfg.Server.CacheTTL = time.Hour
	}

	if cfg.Polygon.BaseURL == "" {
		cfg.Polygon.BaseURL = "https://api.polygon.io"
	}
	if cfg.Polygon.Timeout == 0 {
		cfg.Polygon.Timeout = 30 * time.Second
	}
	if cfg.Polygon.MaxRetries == 0 {
		cfg.Polygon.MaxRetries = 3
	}
	if cfg.Polygon.NewsLimit == 0 {
		cfg.Polygon.NewsLimit = 1000
	}

	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}

	if cfg.Warehouse.Driver == "" {
		cfg.Warehouse.Driver = DriverSQLite
	}
	if cfg.Warehouse.Dataset == "" {
		cfg.Warehouse.Dataset = "stock_data_append"
	}
	if cfg.Warehouse.Location == "" {
		cfg.Warehouse.Location = "US"
	}

	if cfg.Fetch.BarSource == "" {
		cfg.Fetch.BarSource = SourcePolygon
	}
	if cfg.Fetch.MaxWorkers == 0 {
		cfg.Fetch.MaxWorkers = 4
	}
	for i, s := range cfg.Fetch.Symbols {
		cfg.Fetch.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ValidateWarehouse reports configuration problems that would stop the
// warehouse from opening.
func (c *Config) ValidateWarehouse() error {
	switch c.Warehouse.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite warehouse")
		}
	case DriverBigQuery:
		if c.Warehouse.Project == "" {
			return errors.New("warehouse.project (or GCP_PROJECT) is required for bigquery")
		}
	default:
		return fmt.Errorf("unknown warehouse driver %q", c.Warehouse.Driver)
	}
	return nil
}

// ValidateFetch reports configuration problems that would stop a fetch run.
func (c *Config) ValidateFetch() error {
	var errs []error
	if len(c.Fetch.Symbols) == 0 {
		errs = append(errs, errors.New("fetch.symbols must list at least one symbol"))
	}
	if c.Polygon.APIKey == "" {
		// News always comes from Polygon.
		errs = append(errs, errors.New("polygon.api_key (or POLYGON_API_KEY) is required"))
	}
	switch c.Fetch.BarSource {
	case SourcePolygon:
	case SourceAlpaca:
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			errs = append(errs, errors.New("alpaca credentials are required when fetch.bar_source is alpaca"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown fetch.bar_source %q", c.Fetch.BarSource))
	}
	return errors.Join(errs...)
}
