package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"stockDataServer/internal/adapters/logger" // Import the logger package for LogLevel
	"stockDataServer/internal/domain"
)

// Supported cache backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server
	HTTPPort   int
	CORSOrigin string
	APIKey     string // Bearer token required on /api routes; empty disables auth

	// Database
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Upstream providers
	YahooBaseURL        string
	HTTPSProxy          string
	BinanceEnabled      bool
	BinanceAPIKey       string
	BinanceSecretKey    string
	BinanceHistoryStart time.Time

	// Cache refresh; empty disables the scheduler
	RefreshCron string

	// Synthetic data defaults
	Simulation domain.SimulationParameters
	SimEndDate time.Time // Last calendar day of default synthetic runs
	SimWorkers int       // Goroutines for bridge generation; 0 means GOMAXPROCS
	RSIPeriod  int

	ConfigFile string // Path of the YAML file that was applied, if any
}

// fileConfig mirrors the optional YAML file. Values present in the file replace the defaults;
// environment variables still take precedence.
type fileConfig struct {
	Server struct {
		Port       int    `yaml:"port"`
		CORSOrigin string `yaml:"cors_origin"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	LogLevel  string `yaml:"log_level"`
	Providers struct {
		YahooBaseURL string `yaml:"yahoo_base_url"`
		Proxy        string `yaml:"proxy"`
		Binance      struct {
			Enabled      bool   `yaml:"enabled"`
			APIKey       string `yaml:"api_key"`
			APISecret    string `yaml:"api_secret"`
			HistoryStart string `yaml:"history_start"`
		} `yaml:"binance"`
	} `yaml:"providers"`
	RefreshCron string `yaml:"refresh_cron"`
	Simulation  struct {
		StartPrice    float64 `yaml:"start_price"`
		Drift         float64 `yaml:"drift"`
		Volatility    float64 `yaml:"volatility"`
		Periods       int     `yaml:"periods"`
		IntradaySteps int     `yaml:"intraday_steps"`
		EndDate       string  `yaml:"end_date"`
		Workers       int     `yaml:"workers"`
	} `yaml:"simulation"`
	RSIPeriod int `yaml:"rsi_period"`
}

func defaultFileConfig() fileConfig {
	sim := domain.DefaultSimulationParameters()
	var fc fileConfig
	fc.Server.Port = 5001
	fc.Server.CORSOrigin = "*"
	fc.Database.Driver = DriverSQLite
	fc.Database.Path = "./data/stock_data.db"
	fc.LogLevel = "INFO"
	fc.Providers.Binance.HistoryStart = "2019-09-01"
	fc.RefreshCron = "30 22 * * 1-5" // After the US close, UTC
	fc.Simulation.StartPrice = sim.StartPrice
	fc.Simulation.Drift = sim.Drift
	fc.Simulation.Volatility = sim.Volatility
	fc.Simulation.Periods = sim.PeriodCount
	fc.Simulation.IntradaySteps = sim.IntradayStepCount
	fc.Simulation.EndDate = "2025-01-01"
	fc.RSIPeriod = 14
	return fc
}

// LoadConfig loads configuration from the YAML file named by CONFIG_FILE (default config.yaml),
// the .env file and the environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()
	return Load(getEnv("CONFIG_FILE", "config.yaml"))
}

// Load reads the YAML file at path (a missing file is not an error) and applies environment
// overrides. All validation problems are reported together.
func Load(path string) (*Config, error) {
	fc := defaultFileConfig()
	applied := ""
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
			applied = path
		case errors.Is(err, fs.ErrNotExist):
			// Defaults and environment only
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{ConfigFile: applied}
	var err error
	var errs []string // Collect validation errors

	// HTTP server
	cfg.HTTPPort, err = getEnvAsIntRequired("HTTP_PORT", fc.Server.Port)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", fc.Server.CORSOrigin)
	cfg.APIKey = getEnv("API_KEY", fc.Server.APIKey)

	// Database
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", fc.Database.Driver))
	cfg.DBPath = getEnv("DB_PATH", fc.Database.Path)
	cfg.DatabaseURL = getEnv("DATABASE_URL", fc.Database.URL)
	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL must be set for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.DBDriver))
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", fc.LogLevel))

	// Providers
	cfg.YahooBaseURL = getEnv("YAHOO_BASE_URL", fc.Providers.YahooBaseURL)
	cfg.HTTPSProxy = getEnv("HTTPS_PROXY", fc.Providers.Proxy)
	cfg.BinanceEnabled, err = getEnvAsBoolRequired("BINANCE_ENABLED", fc.Providers.Binance.Enabled)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_ENABLED: %v", err))
	}
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", fc.Providers.Binance.APIKey)
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", fc.Providers.Binance.APISecret)
	cfg.BinanceHistoryStart, err = getEnvAsDateRequired("BINANCE_HISTORY_START", fc.Providers.Binance.HistoryStart)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_HISTORY_START: %v", err))
	}

	// Scheduler
	cfg.RefreshCron = strings.TrimSpace(getEnv("REFRESH_CRON", fc.RefreshCron))
	if strings.EqualFold(cfg.RefreshCron, "off") {
		cfg.RefreshCron = ""
	}
	if cfg.RefreshCron != "" {
		if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
			errs = append(errs, fmt.Sprintf("invalid REFRESH_CRON %q: %v", cfg.RefreshCron, err))
		}
	}

	// Simulation
	sim := domain.SimulationParameters{}
	if sim.StartPrice, err = getEnvAsFloatRequired("SIM_START_PRICE", fc.Simulation.StartPrice); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_START_PRICE: %v", err))
	}
	if sim.Drift, err = getEnvAsFloatRequired("SIM_DRIFT", fc.Simulation.Drift); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_DRIFT: %v", err))
	}
	if sim.Volatility, err = getEnvAsFloatRequired("SIM_VOLATILITY", fc.Simulation.Volatility); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_VOLATILITY: %v", err))
	}
	if sim.PeriodCount, err = getEnvAsIntRequired("SIM_PERIODS", fc.Simulation.Periods); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_PERIODS: %v", err))
	}
	if sim.IntradayStepCount, err = getEnvAsIntRequired("SIM_INTRADAY_STEPS", fc.Simulation.IntradaySteps); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_INTRADAY_STEPS: %v", err))
	}
	if err := sim.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid simulation defaults: %v", err))
	}
	cfg.Simulation = sim

	cfg.SimEndDate, err = getEnvAsDateRequired("SIM_END_DATE", fc.Simulation.EndDate)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_END_DATE: %v", err))
	}
	cfg.SimWorkers, err = getEnvAsIntRequired("SIM_WORKERS", fc.Simulation.Workers)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_WORKERS: %v", err))
	} else if cfg.SimWorkers < 0 {
		errs = append(errs, "SIM_WORKERS cannot be negative")
	}

	cfg.RSIPeriod, err = getEnvAsIntRequired("RSI_PERIOD", fc.RSIPeriod)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_PERIOD: %v", err))
	} else if cfg.RSIPeriod <= 0 {
		errs = append(errs, "RSI_PERIOD must be positive")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBoolRequired(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDateRequired parses a YYYY-MM-DD value; defaultValue uses the same layout.
func getEnvAsDateRequired(key string, defaultValue string) (time.Time, error) {
	valueStr := getEnv(key, defaultValue)
	if valueStr == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(domain.DateLayout, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
