package ports

import (
	"context"
	"time"

	"stockDataServer/internal/domain"
)

// PriceRepository defines the interface for the historical price cache.
// Rows are keyed by (ticker, date); saving an existing key replaces the row.
type PriceRepository interface {
	// SaveBars upserts the given rows in a single transaction.
	SaveBars(ctx context.Context, bars []domain.HistoricalBar) error
	// FindByTicker retrieves all cached rows for a ticker, ordered by date ascending.
	// Returns an empty slice if nothing is cached.
	FindByTicker(ctx context.Context, ticker string) ([]domain.HistoricalBar, error)
	// Exists reports whether any rows are cached for the ticker.
	Exists(ctx context.Context, ticker string) (bool, error)
	// ListTickers returns the distinct cached tickers, sorted.
	ListTickers(ctx context.Context) ([]string, error)
	// LatestDate returns the most recent cached date for the ticker.
	// Returns ErrNotFound if nothing is cached.
	LatestDate(ctx context.Context, ticker string) (time.Time, error)
	// Close releases the underlying connection resources.
	Close() error
}
