package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the stock analyzer.
type Config struct {
	// Storage
	StoreDriver  string `mapstructure:"store_driver"`
	MongoDBURI   string `mapstructure:"mongodb_uri"`
	DatabaseName string `mapstructure:"database_name"`
	SQLitePath   string `mapstructure:"sqlite_path"`

	// HTTP server
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	// Refresh cycle and cache
	AnalysisIntervalSecs int `mapstructure:"analysis_interval_secs"`
	CacheTTLSecs         int `mapstructure:"cache_ttl_secs"`
	CacheCapacity        int `mapstructure:"cache_capacity"`
	ListCacheCapacity    int `mapstructure:"list_cache_capacity"`

	// Fetching
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
	FetchDelayMs     int `mapstructure:"fetch_delay_ms"`
	LookbackDays     int `mapstructure:"lookback_days"`
	RateLimitRetries int `mapstructure:"rate_limit_retries"`
	BackoffBaseMs    int `mapstructure:"backoff_base_ms"`

	// Upstreams (base URLs are configurable for testing)
	YahooRPS          float64 `mapstructure:"yahoo_rps"`
	NasdaqRPS         float64 `mapstructure:"nasdaq_rps"`
	CredentialTTLSecs int     `mapstructure:"credential_ttl_secs"`
	YahooBaseURL      string  `mapstructure:"yahoo_base_url"`
	YahooSessionURL   string  `mapstructure:"yahoo_session_url"`
	YahooCrumbURL     string  `mapstructure:"yahoo_crumb_url"`
	NasdaqBaseURL     string  `mapstructure:"nasdaq_base_url"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"store_driver":           "mongo",
	"mongodb_uri":            "",
	"database_name":          "stock_analyzer",
	"sqlite_path":            "stockanalyzer.db",
	"server_host":            "0.0.0.0",
	"server_port":            3000,
	"analysis_interval_secs": 3600,
	"cache_ttl_secs":         300,
	"cache_capacity":         10000,
	"list_cache_capacity":    100,
	"fetch_concurrency":      5,
	"fetch_delay_ms":         500,
	"lookback_days":          90,
	"rate_limit_retries":     2,
	"backoff_base_ms":        2000,
	"yahoo_rps":              2.0,
	"nasdaq_rps":             1.0,
	"credential_ttl_secs":    900,
	"yahoo_base_url":         "https://query1.finance.yahoo.com",
	"yahoo_session_url":      "https://fc.yahoo.com",
	"yahoo_crumb_url":        "https://query1.finance.yahoo.com/v1/test/getcrumb",
	"nasdaq_base_url":        "https://api.nasdaq.com",
	"log_level":              "info",
	"log_format":             "text",
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config.yaml. Environment variables take precedence over the
// config file; every key maps to its upper-cased environment variable, e.g.
// fetch_concurrency to FETCH_CONCURRENCY.
//
// MONGODB_URI is required when STORE_DRIVER is mongo.
func Load() (*Config, error) {
	// A missing .env file is fine; existing variables are never overridden.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		v.BindEnv(key, strings.ToUpper(key))
	}

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.stockanalyzer")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.StoreDriver {
	case "mongo":
		if c.MongoDBURI == "" {
			problems = append(problems, "MONGODB_URI is required when STORE_DRIVER=mongo")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH must not be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be mongo or sqlite, got %q", c.StoreDriver))
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		problems = append(problems, fmt.Sprintf("SERVER_PORT out of range: %d", c.ServerPort))
	}
	if c.FetchConcurrency < 1 {
		problems = append(problems, "FETCH_CONCURRENCY must be at least 1")
	}
	if c.FetchDelayMs < 0 || c.RateLimitRetries < 0 || c.BackoffBaseMs < 0 {
		problems = append(problems, "FETCH_DELAY_MS, RATE_LIMIT_RETRIES and BACKOFF_BASE_MS must not be negative")
	}
	if c.AnalysisIntervalSecs < 1 || c.CacheTTLSecs < 1 || c.CredentialTTLSecs < 1 {
		problems = append(problems, "ANALYSIS_INTERVAL_SECS, CACHE_TTL_SECS and CREDENTIAL_TTL_SECS must be positive")
	}
	if c.LookbackDays < 1 {
		problems = append(problems, "LOOKBACK_DAYS must be at least 1")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AnalysisInterval is both the staleness threshold and the pause between
// cycles.
func (c *Config) AnalysisInterval() time.Duration {
	return time.Duration(c.AnalysisIntervalSecs) * time.Second
}

// CacheTTL is how long a cached per-symbol analysis stays valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// CredentialTTL is how long a session credential is reused before refresh.
func (c *Config) CredentialTTL() time.Duration {
	return time.Duration(c.CredentialTTLSecs) * time.Second
}

// FetchDelay is the pause between launching consecutive fetches.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.FetchDelayMs) * time.Millisecond
}

// BackoffBase is the first rate limit backoff step.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
