package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string
	LedgerPath         string
	AnalysisServiceURL string
	RegimeServiceURL   string
	LogLevel           string
	Port               int
	DevMode            bool

	// Monitor cadences
	PositionCheckInterval  time.Duration // Tier 1
	WatchlistCheckInterval time.Duration // Tier 2
	PriceMoveThresholdPct  float64       // Tier 2 event trigger
	UniverseScanHour       int           // Tier 3 daily window (local hour)

	WatchlistMinScore float64 // Tier 3 promotion threshold

	// Execution
	ExecutionCronSpec string // daily batch cutoff
	MonitorCronSpec   string // intraday monitor cycles
	RunRetryDelay     time.Duration
	ProviderTimeout   time.Duration
	ProviderRateRPS   float64
	LockTimeout       time.Duration

	InitialCash float64 // paper portfolio seed on first run
}

// Paths derived from DataDir. Each durable file has its own lock file so
// the monitor and executor processes can cooperate over shared state.
func (c *Config) PortfolioPath() string     { return filepath.Join(c.DataDir, "portfolio.json") }
func (c *Config) PortfolioLockPath() string { return filepath.Join(c.DataDir, "portfolio.lock") }
func (c *Config) QueuePath() string         { return filepath.Join(c.DataDir, "buy_queue.json") }
func (c *Config) QueueLockPath() string     { return filepath.Join(c.DataDir, "buy_queue.lock") }
func (c *Config) SignalHistoryPath() string { return filepath.Join(c.DataDir, "signal_history.json") }
func (c *Config) SignalLockPath() string    { return filepath.Join(c.DataDir, "signal_history.lock") }
func (c *Config) WatchlistPath() string     { return filepath.Join(c.DataDir, "watchlist.json") }
func (c *Config) ExecutionLogPath() string  { return filepath.Join(c.DataDir, "execution_log.json") }
func (c *Config) RulesPath() string         { return filepath.Join(c.DataDir, "trading_rules.json") }

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8010),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		DataDir:            getEnv("DATA_DIR", "./data"),
		LedgerPath:         getEnv("LEDGER_PATH", "./data/ledger.db"),
		AnalysisServiceURL: getEnv("ANALYSIS_SERVICE_URL", "http://localhost:8000"),
		RegimeServiceURL:   getEnv("REGIME_SERVICE_URL", "http://localhost:8000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		PositionCheckInterval:  getEnvAsDuration("POSITION_CHECK_INTERVAL", 30*time.Minute),
		WatchlistCheckInterval: getEnvAsDuration("WATCHLIST_CHECK_INTERVAL", 2*time.Hour),
		PriceMoveThresholdPct:  getEnvAsFloat("PRICE_MOVE_THRESHOLD_PCT", 5.0),
		UniverseScanHour:       getEnvAsInt("UNIVERSE_SCAN_HOUR", 7),
		WatchlistMinScore:      getEnvAsFloat("WATCHLIST_MIN_SCORE", 70),

		// 15:45 New York time, weekdays; the calendar gate handles holidays.
		ExecutionCronSpec: getEnv("EXECUTION_CRON", "45 15 * * MON-FRI"),
		MonitorCronSpec:   getEnv("MONITOR_CRON", "*/30 9-16 * * MON-FRI"),
		RunRetryDelay:     getEnvAsDuration("RUN_RETRY_DELAY", 5*time.Minute),
		ProviderTimeout:   getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderRateRPS:   getEnvAsFloat("PROVIDER_RATE_RPS", 5.0),
		LockTimeout:       getEnvAsDuration("LOCK_TIMEOUT", 30*time.Second),

		InitialCash: getEnvAsFloat("INITIAL_CASH", 10000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_PATH is required")
	}
	if c.PriceMoveThresholdPct <= 0 {
		return fmt.Errorf("PRICE_MOVE_THRESHOLD_PCT must be positive")
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("INITIAL_CASH must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
