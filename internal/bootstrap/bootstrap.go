// Package bootstrap builds the adapters selected by the configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"stockDataServer/config"
	"stockDataServer/internal/adapters/binanceclient"
	"stockDataServer/internal/adapters/postgres"
	"stockDataServer/internal/adapters/sqlite"
	"stockDataServer/internal/adapters/yahoo"
	"stockDataServer/internal/ports"
)

// OpenRepository opens the configured price cache.
func OpenRepository(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.PriceRepository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(ctx, postgres.Config{DatabaseURL: cfg.DatabaseURL, Logger: logger})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverSQLite, "":
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: logger})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q: %w", cfg.DBDriver, ports.ErrConfigurationError)
	}
}

// Providers returns the enabled market data providers in routing order.
// Binance comes first so USDT pairs do not fall through to Yahoo.
func Providers(ctx context.Context, cfg *config.Config, logger ports.Logger) ([]ports.MarketDataProvider, error) {
	providers := make([]ports.MarketDataProvider, 0, 2)

	if cfg.BinanceEnabled {
		bc, err := binanceclient.New(binanceclient.Config{
			APIKey:       cfg.BinanceAPIKey,
			SecretKey:    cfg.BinanceSecretKey,
			HistoryStart: cfg.BinanceHistoryStart,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := bc.Ping(pingCtx); err != nil {
			logger.Warn(ctx, "Binance ping failed; USDT tickers may be unavailable", map[string]interface{}{"error": err.Error()})
		}
		cancel()
		providers = append(providers, bc)
	}

	yc, err := yahoo.NewClient(yahoo.Config{
		BaseURL:  cfg.YahooBaseURL,
		ProxyURL: cfg.HTTPSProxy,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	providers = append(providers, yc)

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info(ctx, "Market data providers initialized", map[string]interface{}{"providers": names})
	return providers, nil
}
