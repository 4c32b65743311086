package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the analyst CLI
type Config struct {
	// Endpoint configuration
	Provider         string `envconfig:"ANALYST_PROVIDER" default:"anthropic"` // anthropic or lorem
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`

	// Analysis loop configuration
	Model       string `envconfig:"ANALYST_MODEL" default:"claude-sonnet-4-5-20250929"`
	MaxTokens   int    `envconfig:"ANALYST_MAX_TOKENS" default:"64000"`
	MaxTurns    int    `envconfig:"ANALYST_MAX_TURNS" default:"3"`
	HistoryDays int    `envconfig:"ANALYST_HISTORY_DAYS" default:"30"`
	CatalogPath string `envconfig:"ANALYST_CATALOG_PATH"` // Optional YAML tool catalog; embedded one when empty
	ModelsPath  string `envconfig:"ANALYST_MODELS_PATH"`  // Optional YAML model limits and pricing; embedded one when empty

	// Market data configuration
	FMPAPIKey     string  `envconfig:"FMP_API_KEY"`
	FMPBaseURL    string  `envconfig:"FMP_BASE_URL" default:"https://financialmodelingprep.com/stable"`
	MarketDataRPS float64 `envconfig:"MARKETDATA_RPS" default:"5"` // Requests per second, 0 disables limiting

	// Ledger configuration
	LedgerPath         string `envconfig:"LEDGER_PATH" default:"analyst.db"`
	UserID             string `envconfig:"ANALYST_USER" default:"local"`
	DailyAnalysisLimit int    `envconfig:"DAILY_ANALYSIS_LIMIT" default:"10"` // 0 disables the limit

	// Observability configuration
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`   // Log level: debug, info, warn, error
	LogPretty       bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
	MetricsTextfile string `envconfig:"METRICS_TEXTFILE"`           // Write Prometheus metrics here after each run
}

// Load reads configuration from environment variables.
// It first loads the nearest .env file walking up from the working directory.
func Load() (*Config, error) {
	LoadEnv()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations envconfig cannot express.
// Credentials are checked by the commands that use them.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic", "lorem":
	default:
		return fmt.Errorf("ANALYST_PROVIDER must be anthropic or lorem, got %q", c.Provider)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("ANALYST_MAX_TOKENS must be positive")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("ANALYST_MAX_TURNS must be positive")
	}
	if c.HistoryDays < 1 {
		return fmt.Errorf("ANALYST_HISTORY_DAYS must be positive")
	}
	if c.MarketDataRPS < 0 {
		return fmt.Errorf("MARKETDATA_RPS must not be negative")
	}
	return nil
}

// LoadEnv searches for a .env file starting from the current directory
// and walking up the directory tree. It loads the first .env file found.
// If no .env file is found, it silently continues (using system env vars).
func LoadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
