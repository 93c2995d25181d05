package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every variable applyEnvOverrides reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, "DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "ALPACA_FEED", "LOG_LEVEL", "LOG_FORMAT", "CHARTIST_PORT",
		"CHARTIST_CORS_ORIGINS", "CHARTIST_ORACLE_ADDR", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chartist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/chartist/data"
  sqlite_path: "/tmp/chartist/chartist.db"
server:
  host: "127.0.0.1"
  port: 8181
  cors_origins: ["http://localhost:3000"]
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
  rate_limit_burst: 4
logging:
  level: "debug"
  format: "json"
backtest:
  initial_balance: 50000
  risk_per_trade: 0.02
  timeframe: "1Hour"
  data_source: "archive"
  batch_workers: 8
oracle:
  addr: "localhost:9999"
strategies:
  sma_cross:
    short_period: 5
    long_period: 20
    stop_pct: 0.01
    target_pct: 0.03
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/chartist/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/chartist/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/chartist/chartist.db" {
		t.Errorf("Storage.SQLitePath = %q", cfg.Storage.SQLitePath)
	}

	// -- Server --
	if cfg.Server.Addr() != "127.0.0.1:8181" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:8181")
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca credentials = %q/%q", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}
	if cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "sip")
	}
	// Unset in YAML, so the default survives.
	if cfg.Alpaca.RateLimitPerMin != 200 {
		t.Errorf("Alpaca.RateLimitPerMin = %d, want default 200", cfg.Alpaca.RateLimitPerMin)
	}
	if cfg.Alpaca.RateLimitBurst != 4 {
		t.Errorf("Alpaca.RateLimitBurst = %d, want 4", cfg.Alpaca.RateLimitBurst)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Backtest --
	if cfg.Backtest.InitialBalance != 50000 {
		t.Errorf("Backtest.InitialBalance = %v, want 50000", cfg.Backtest.InitialBalance)
	}
	if cfg.Backtest.RiskPerTrade != 0.02 {
		t.Errorf("Backtest.RiskPerTrade = %v, want 0.02", cfg.Backtest.RiskPerTrade)
	}
	if cfg.Backtest.Timeframe != "1Hour" || cfg.Backtest.DataSource != "archive" {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Backtest.Strategy != "sma-cross" {
		t.Errorf("Backtest.Strategy = %q, want default sma-cross", cfg.Backtest.Strategy)
	}

	// -- Oracle / strategies --
	if cfg.Oracle.Addr != "localhost:9999" {
		t.Errorf("Oracle.Addr = %q", cfg.Oracle.Addr)
	}
	if cfg.Strategies.SMACross.ShortPeriod != 5 || cfg.Strategies.SMACross.LongPeriod != 20 {
		t.Errorf("Strategies.SMACross = %+v", cfg.Strategies.SMACross)
	}
	if cfg.Strategies.Breakout.Lookback != 20 {
		t.Errorf("Strategies.Breakout.Lookback = %d, want default 20", cfg.Strategies.Breakout.Lookback)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Backtest.InitialBalance != 100000 {
		t.Errorf("InitialBalance = %v, want 100000", cfg.Backtest.InitialBalance)
	}
	if cfg.Backtest.RiskPerTrade != 0.01 {
		t.Errorf("RiskPerTrade = %v, want 0.01", cfg.Backtest.RiskPerTrade)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Alpaca.RateLimitBurst != 1 {
		t.Errorf("Alpaca.RateLimitBurst = %d, want 1", cfg.Alpaca.RateLimitBurst)
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 7070\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("CHARTIST_PORT", "9191")
	t.Setenv("CHARTIST_CORS_ORIGINS", "http://a,http://b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Server.CORSOrigins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}

	// Canonical Alpaca names win over the short ones.
	t.Setenv("APCA_API_KEY_ID", "apca-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "apca-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "apca-key")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}

	cfg.Backtest.InitialBalance = 0
	cfg.Backtest.RiskPerTrade = 1.5
	cfg.Backtest.DataSource = "ftp"
	cfg.Strategies.SMACross.ShortPeriod = 40
	cfg.Alpaca.RateLimitBurst = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"initial_balance", "risk_per_trade", "data_source", "sma_cross", "rate_limit_burst"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %q", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file returned nil error")
	}
}
