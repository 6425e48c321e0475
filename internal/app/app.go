// Package app wires configuration, market data clients, the cache and the
// portfolio pipeline into a single core shared by the CLI commands.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/clients/cached"
	"github.com/bobmcallan/vire-analyzer/internal/clients/eodhd"
	"github.com/bobmcallan/vire-analyzer/internal/clients/yahoo"
	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/ledger"
	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/services/portfolio"
	"github.com/bobmcallan/vire-analyzer/internal/storage"
)

// App holds the initialized configuration, clients and services.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Provider         interfaces.MarketDataProvider
	Cache            interfaces.MarketCache
	Loader           *ledger.Loader
	PortfolioService *portfolio.Service
	Notices          models.Warnings // startup conditions attached to every analysis
	StartupTime      time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath checks the provided path, VIRE_CONFIG, then the binary
// dir, then the development fallback.
func resolveConfigPath(configPath, binDir string) string {
	if configPath == "" {
		configPath = os.Getenv("VIRE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "vire-analyzer.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/vire-analyzer.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and initializes the provider, cache and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	config, err := common.LoadConfig(resolveConfigPath(configPath, binDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative cache and log paths to binary directory
	if config.Cache.Path != "" && !filepath.IsAbs(config.Cache.Path) {
		config.Cache.Path = filepath.Join(binDir, config.Cache.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	return newApp(context.Background(), config, logger, startupStart)
}

// newApp builds the App from a loaded configuration.
func newApp(ctx context.Context, config *common.Config, logger *common.Logger, startupStart time.Time) (*App, error) {
	provider, err := newProvider(config, logger)
	if err != nil {
		return nil, err
	}

	var notices models.Warnings
	cache, err := storage.NewMarketCache(ctx, logger, &config.Cache)
	if err != nil {
		logger.Warn().Str("backend", config.Cache.Backend).Err(err).Msg("Market cache unavailable - continuing without cache")
		notices.Add("cache", models.WarningCacheUnavailable, "",
			fmt.Sprintf("%s cache unavailable; market data fetched live", config.Cache.Backend))
		cache = nil
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Provider:    cached.New(provider, cache, config.Cache.GetTTL(), logger),
		Cache:       cache,
		Loader:      ledger.NewLoader(config.Ledger.DataDir, logger),
		Notices:     notices,
		StartupTime: startupStart,
	}
	a.PortfolioService = portfolio.NewService(a.Provider, config, logger, portfolio.WithNotices(notices))

	logger.Info().
		Str("provider", provider.Name()).
		Str("cache", config.Cache.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// newProvider creates the configured market data client.
func newProvider(config *common.Config, logger *common.Logger) (interfaces.MarketDataProvider, error) {
	switch config.Provider.Name {
	case "eodhd":
		c := config.Clients.EODHD
		if c.APIKey == "" {
			return nil, fmt.Errorf("eodhd provider selected but no API key configured (set EODHD_API_KEY)")
		}
		return eodhd.NewClient(c.APIKey,
			eodhd.WithBaseURL(c.BaseURL),
			eodhd.WithLogger(logger),
			eodhd.WithRateLimit(c.RateLimit),
			eodhd.WithTimeout(c.GetTimeout()),
		), nil
	default:
		c := config.Clients.Yahoo
		return yahoo.NewClient(
			yahoo.WithBaseURL(c.BaseURL),
			yahoo.WithLogger(logger),
			yahoo.WithRateLimit(c.RateLimit),
			yahoo.WithTimeout(c.GetTimeout()),
		), nil
	}
}

// LoadTrades reads the ledger files named in files, or the configured files
// when files is empty.
func (a *App) LoadTrades(files []string) ([]models.Trade, error) {
	if len(files) == 0 {
		files = a.Config.Ledger.Files
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no ledger files configured", models.ErrNoTradeData)
	}
	return a.Loader.LoadFiles(files)
}

// Analyze loads the ledger and runs the pipeline up to asOf.
func (a *App) Analyze(ctx context.Context, files []string, asOf time.Time) (*models.Analysis, error) {
	trades, err := a.LoadTrades(files)
	if err != nil {
		return nil, err
	}
	return a.PortfolioService.Analyze(ctx, trades, asOf)
}

// Close releases the cache.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close market cache")
		}
		a.Cache = nil
	}
}
