package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at the config
// file when no path is given on the command line.
const EnvConfigPath = "CHARTIST_CONFIG"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for chartist.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Strategies StrategiesConfig `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port for the HTTP listener.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and data-feed settings for the Alpaca market data
// API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds the defaults applied to backtest requests that leave
// a field unset.
type BacktestConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	Timeframe      string  `yaml:"timeframe"`
	Strategy       string  `yaml:"strategy"`
	// DataSource is "alpaca" (remote, archived on the way through) or
	// "archive" (local Parquet only).
	DataSource   string `yaml:"data_source"`
	BatchWorkers int    `yaml:"batch_workers"`
}

// OracleConfig controls the remote decision service. When Addr is set the
// server registers a remote strategy that forwards decisions to it.
type OracleConfig struct {
	Addr       string `yaml:"addr"`
	ListenAddr string `yaml:"listen_addr"`
	Strategy   string `yaml:"strategy"`
}

// StrategiesConfig holds parameters for the built-in strategies.
type StrategiesConfig struct {
	SMACross SMACrossConfig `yaml:"sma_cross"`
	Breakout BreakoutConfig `yaml:"breakout"`
}

// SMACrossConfig parameterises the moving-average crossover strategy.
type SMACrossConfig struct {
	ShortPeriod int     `yaml:"short_period"`
	LongPeriod  int     `yaml:"long_period"`
	StopPct     float64 `yaml:"stop_pct"`
	TargetPct   float64 `yaml:"target_pct"`
}

// BreakoutConfig parameterises the channel breakout strategy.
type BreakoutConfig struct {
	Lookback   int     `yaml:"lookback"`
	RewardRisk float64 `yaml:"reward_risk"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/chartist.db",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Alpaca: Alpaca{
			Feed:            "iex",
			RateLimitPerMin: 200,
			RateLimitBurst:  1,
			MaxRetries:      3,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Backtest: BacktestConfig{
			InitialBalance: 100000,
			RiskPerTrade:   0.01,
			Timeframe:      "1Day",
			Strategy:       "sma-cross",
			DataSource:     "alpaca",
			BatchWorkers:   4,
		},
		Oracle: OracleConfig{
			ListenAddr: "127.0.0.1:9090",
			Strategy:   "sma-cross",
		},
		Strategies: StrategiesConfig{
			SMACross: SMACrossConfig{ShortPeriod: 10, LongPeriod: 30, StopPct: 0.02, TargetPct: 0.04},
			Breakout: BreakoutConfig{Lookback: 20, RewardRisk: 2},
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides. An empty path falls
// back to $CHARTIST_CONFIG; when that is unset too only defaults and the
// environment are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that would make a run impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Backtest.InitialBalance <= 0 {
		errs = append(errs, fmt.Errorf("backtest.initial_balance must be positive, got %v", c.Backtest.InitialBalance))
	}
	if c.Backtest.RiskPerTrade <= 0 || c.Backtest.RiskPerTrade >= 1 {
		errs = append(errs, fmt.Errorf("backtest.risk_per_trade must be in (0, 1), got %v", c.Backtest.RiskPerTrade))
	}
	switch c.Backtest.DataSource {
	case "alpaca", "archive":
	default:
		errs = append(errs, fmt.Errorf("backtest.data_source must be alpaca or archive, got %q", c.Backtest.DataSource))
	}
	if c.Backtest.BatchWorkers < 1 {
		errs = append(errs, fmt.Errorf("backtest.batch_workers must be at least 1, got %d", c.Backtest.BatchWorkers))
	}
	if c.Alpaca.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("alpaca.rate_limit_burst must be at least 1, got %d", c.Alpaca.RateLimitBurst))
	}
	if sc := c.Strategies.SMACross; sc.ShortPeriod < 1 || sc.ShortPeriod >= sc.LongPeriod {
		errs = append(errs, fmt.Errorf("strategies.sma_cross: short_period must be in [1, long_period), got %d/%d", sc.ShortPeriod, sc.LongPeriod))
	}
	return errors.Join(errs...)
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

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("CHARTIST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("CHARTIST_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("CHARTIST_ORACLE_ADDR"); v != "" {
		cfg.Oracle.Addr = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
