// Package common provides shared utilities for the Vire analyzer
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the analyzer
type Config struct {
	Environment       string                  `toml:"environment"`
	ReportingCurrency string                  `toml:"reporting_currency"` // Currency every value is expressed in (default "USD")
	Ledger            LedgerConfig            `toml:"ledger"`
	Provider          ProviderConfig          `toml:"provider"`
	Clients           ClientsConfig           `toml:"clients"`
	Markets           map[string]MarketConfig `toml:"markets"`
	Pricing           PricingConfig           `toml:"pricing"`
	Splits            SplitsConfig            `toml:"splits"`
	Cache             CacheConfig             `toml:"cache"`
	Chart             ChartConfig             `toml:"chart"`
	Logging           LoggingConfig           `toml:"logging"`
}

// LedgerConfig locates the broker activity files
type LedgerConfig struct {
	DataDir string   `toml:"data_dir"`
	Files   []string `toml:"files"`
}

// ProviderConfig selects the market data source ("yahoo" or "eodhd")
type ProviderConfig struct {
	Name string `toml:"name"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Yahoo YahooConfig `toml:"yahoo"`
	EODHD EODHDConfig `toml:"eodhd"`
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// MarketConfig describes a listing market keyed by its trading currency.
// Suffix is appended to symbols to form the provider listing key; FXFallback is
// the units of reporting currency per unit used when no live rate exists.
type MarketConfig struct {
	Suffix     string  `toml:"suffix"`
	FXFallback float64 `toml:"fx_fallback"`
}

// PricingConfig tunes the price history fetch
type PricingConfig struct {
	PlaceholderPrice float64 `toml:"placeholder_price"`
	FetchConcurrency int     `toml:"fetch_concurrency"`
}

// SplitsConfig controls split handling. When Live is false the ledger is
// assumed to be pre-adjusted and no split history is requested.
type SplitsConfig struct {
	Live bool `toml:"live"`
}

// CacheConfig selects the optional market data cache
type CacheConfig struct {
	Backend   string        `toml:"backend"` // none, memory, file, sqlite, surrealdb
	TTL       string        `toml:"ttl"`
	Path      string        `toml:"path"`
	SurrealDB SurrealConfig `toml:"surrealdb"`
}

// GetTTL parses and returns the cache entry lifetime
func (c *CacheConfig) GetTTL() time.Duration {
	return parseDurationOr(c.TTL, 12*time.Hour)
}

// SurrealConfig holds SurrealDB connection settings
type SurrealConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ChartConfig sizes rendered charts
type ChartConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:       "development",
		ReportingCurrency: "USD",
		Ledger: LedgerConfig{
			DataDir: "data",
		},
		Provider: ProviderConfig{Name: "yahoo"},
		Clients: ClientsConfig{
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 5,
				Timeout:   "30s",
			},
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Markets: DefaultMarkets(),
		Pricing: PricingConfig{
			PlaceholderPrice: 100.0,
			FetchConcurrency: 4,
		},
		Splits: SplitsConfig{Live: true},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     "12h",
			Path:    "data/cache",
			SurrealDB: SurrealConfig{
				Address:   "ws://localhost:8000/rpc",
				Namespace: "vire",
				Database:  "analyzer",
				Username:  "root",
				Password:  "root",
			},
		},
		Chart: ChartConfig{Width: 1200, Height: 500},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Outputs:    []string{"console"},
			FilePath:   "./logs/vire-analyzer.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// DefaultMarkets returns the built-in listing markets
func DefaultMarkets() map[string]MarketConfig {
	return map[string]MarketConfig{
		"SGD": {Suffix: ".SI", FXFallback: 0.74},
		"INR": {Suffix: "", FXFallback: 0.012},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env values never override variables already present in the environment
	_ = godotenv.Load()

	applyEnvOverrides(config)
	normalize(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("VIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if rc := os.Getenv("VIRE_REPORTING_CURRENCY"); rc != "" {
		config.ReportingCurrency = rc
	}

	if p := os.Getenv("VIRE_PROVIDER"); p != "" {
		config.Provider.Name = p
	}

	if dir := os.Getenv("VIRE_DATA_DIR"); dir != "" {
		config.Ledger.DataDir = dir
	}

	if files := os.Getenv("VIRE_LEDGER_FILES"); files != "" {
		var list []string
		for _, f := range strings.Split(files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				list = append(list, f)
			}
		}
		config.Ledger.Files = list
	}

	if backend := os.Getenv("VIRE_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}

	if addr := os.Getenv("VIRE_SURREALDB_ADDRESS"); addr != "" {
		config.Cache.SurrealDB.Address = addr
	}

	if v := os.Getenv("VIRE_SPLITS_LIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Splits.Live = b
		}
	}

	if v := os.Getenv("VIRE_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pricing.FetchConcurrency = n
		}
	}

	if key := ResolveAPIKey("eodhd_api_key", ""); key != "" {
		config.Clients.EODHD.APIKey = key
	}
}

// ResolveAPIKey resolves an API key from the environment, falling back to the supplied value
func ResolveAPIKey(name string, fallback string) string {
	keyToEnvMapping := map[string][]string{
		"eodhd_api_key": {"EODHD_API_KEY", "VIRE_EODHD_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue
			}
		}
	}

	return fallback
}

// FXFallbacks returns the fallback rate for every configured market currency
func (c *Config) FXFallbacks() map[string]float64 {
	out := make(map[string]float64, len(c.Markets))
	for ccy, m := range c.Markets {
		out[ccy] = m.FXFallback
	}
	return out
}

// MarketSuffixes returns the listing suffix for every configured market currency
func (c *Config) MarketSuffixes() map[string]string {
	out := make(map[string]string, len(c.Markets))
	for ccy, m := range c.Markets {
		out[ccy] = m.Suffix
	}
	return out
}

// normalize upper-cases currency codes and repairs out-of-range tuning values.
func normalize(config *Config) {
	config.ReportingCurrency = strings.ToUpper(strings.TrimSpace(config.ReportingCurrency))
	if len(config.ReportingCurrency) != 3 {
		config.ReportingCurrency = "USD"
	}

	markets := make(map[string]MarketConfig, len(config.Markets))
	for ccy, m := range config.Markets {
		markets[strings.ToUpper(strings.TrimSpace(ccy))] = m
	}
	config.Markets = markets

	config.Provider.Name = strings.ToLower(strings.TrimSpace(config.Provider.Name))
	if config.Provider.Name != "eodhd" {
		config.Provider.Name = "yahoo"
	}

	config.Cache.Backend = strings.ToLower(strings.TrimSpace(config.Cache.Backend))

	if config.Pricing.FetchConcurrency < 1 {
		config.Pricing.FetchConcurrency = 1
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
