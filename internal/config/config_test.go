package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temp YAML file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsoverlay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// clearEnv unsets every override variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "POLYGON_API_KEY", "POLYGON_BASE_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "WAREHOUSE_DRIVER",
		"GCP_PROJECT", "GOOGLE_APPLICATION_CREDENTIALS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/overlay/data"
  sqlite_path: "/tmp/overlay/overlay.db"
server:
  host: "0.0.0.0"
  port: 8050
  grpc_port: 9090
  cache_ttl: 30m
polygon:
  api_key: "test-key"
  rate_limit_per_min: 5
  timeout: 10s
warehouse:
  driver: "bigquery"
  project: "project-portfolio"
  dataset: "stock_data_append"
fetch:
  symbols: ["nflx", " aapl "]
  start_date: "2025-07-25"
  end_date: "2025-09-29"
logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/overlay/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/overlay/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/overlay/overlay.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/overlay/overlay.db")
	}

	// -- Server --
	if cfg.Server.Port != 8050 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8050)
	}
	if cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server.GRPCPort = %d, want %d", cfg.Server.GRPCPort, 9090)
	}
	if cfg.Server.CacheTTL != 30*time.Minute {
		t.Errorf("Server.CacheTTL = %v, want %v", cfg.Server.CacheTTL, 30*time.Minute)
	}

	// -- Polygon --
	if cfg.Polygon.APIKey != "test-key" {
		t.Errorf("Polygon.APIKey = %q, want %q", cfg.Polygon.APIKey, "test-key")
	}
	if cfg.Polygon.Timeout != 10*time.Second {
		t.Errorf("Polygon.Timeout = %v, want %v", cfg.Polygon.Timeout, 10*time.Second)
	}
	if cfg.Polygon.BaseURL != "https://api.polygon.io" {
		t.Errorf("Polygon.BaseURL = %q, want default", cfg.Polygon.BaseURL)
	}

	// -- Warehouse --
	if cfg.Warehouse.Driver != DriverBigQuery {
		t.Errorf("Warehouse.Driver = %q, want %q", cfg.Warehouse.Driver, DriverBigQuery)
	}
	if cfg.Warehouse.Location != "US" {
		t.Errorf("Warehouse.Location = %q, want default %q", cfg.Warehouse.Location, "US")
	}

	// -- Fetch --
	if strings.Join(cfg.Fetch.Symbols, ",") != "NFLX,AAPL" {
		t.Errorf("Fetch.Symbols = %v, want [NFLX AAPL]", cfg.Fetch.Symbols)
	}
	if cfg.Fetch.BarSource != SourcePolygon {
		t.Errorf("Fetch.BarSource = %q, want %q", cfg.Fetch.BarSource, SourcePolygon)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "data")
	}
	if cfg.Storage.SQLitePath != "data/newsoverlay.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "data/newsoverlay.db")
	}
	if cfg.Server.CacheTTL != time.Hour {
		t.Errorf("Server.CacheTTL = %v, want 1h", cfg.Server.CacheTTL)
	}
	if cfg.Polygon.NewsLimit != 1000 {
		t.Errorf("Polygon.NewsLimit = %d, want 1000", cfg.Polygon.NewsLimit)
	}
	if cfg.Warehouse.Driver != DriverSQLite {
		t.Errorf("Warehouse.Driver = %q, want %q", cfg.Warehouse.Driver, DriverSQLite)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
polygon:
  api_key: "yaml-key"
alpaca:
  api_key: "yaml-alpaca"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("POLYGON_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("APCA_API_KEY_ID", "env-alpaca")
	t.Setenv("GCP_PROJECT", "env-project")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Polygon.APIKey != "env-key" {
		t.Errorf("Polygon.APIKey = %q, want %q (env override)", cfg.Polygon.APIKey, "env-key")
	}
	if cfg.Alpaca.APIKey != "env-alpaca" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-alpaca")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	// The sqlite default derives from the overridden data dir.
	if cfg.Storage.SQLitePath != "/env/data/newsoverlay.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/env/data/newsoverlay.db")
	}
	if cfg.Warehouse.Project != "env-project" {
		t.Errorf("Warehouse.Project = %q, want %q", cfg.Warehouse.Project, "env-project")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if err := cfg.ValidateWarehouse(); err != nil {
		t.Errorf("default sqlite warehouse should validate: %v", err)
	}
	cfg.Warehouse.Driver = DriverBigQuery
	if err := cfg.ValidateWarehouse(); err == nil {
		t.Error("bigquery without project should fail validation")
	}
	cfg.Warehouse.Driver = "oracle"
	if err := cfg.ValidateWarehouse(); err == nil {
		t.Error("unknown driver should fail validation")
	}

	err := cfg.ValidateFetch()
	if err == nil {
		t.Fatal("empty fetch config should fail validation")
	}
	if !strings.Contains(err.Error(), "symbols") || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("ValidateFetch error = %q, want both symbols and api_key problems", err)
	}

	cfg.Fetch.Symbols = []string{"NFLX"}
	cfg.Polygon.APIKey = "k"
	if err := cfg.ValidateFetch(); err != nil {
		t.Errorf("ValidateFetch: %v", err)
	}
	cfg.Fetch.BarSource = SourceAlpaca
	if err := cfg.ValidateFetch(); err == nil {
		t.Error("alpaca source without credentials should fail validation")
	}
}
