package ports

import (
	"context"
	"time"

	"stockDataServer/internal/domain"
)

// MarketDataProvider defines the interface for upstream sources of historical daily rows.
type MarketDataProvider interface {
	// Name identifies the provider in logs.
	Name() string
	// Supports reports whether the provider can serve the (normalized) ticker.
	Supports(ticker string) bool
	// FetchHistory retrieves daily rows for the ticker, ordered by date ascending.
	// A zero since requests the full available history; otherwise rows before since are omitted.
	// Returns ErrNotFound if the upstream knows no such ticker.
	FetchHistory(ctx context.Context, ticker string, since time.Time) ([]domain.HistoricalBar, error)
}
