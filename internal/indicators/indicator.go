package indicators

import (
	"context"

	"stockDataServer/internal/domain"
)

// Indicator represents a technical indicator that can be calculated from daily bars
type Indicator interface {
	// Calculate computes the latest indicator value for the given bars
	Calculate(ctx context.Context, bars []domain.PriceBar) (float64, error)

	// RequiredDataPoints returns the number of bars needed for a full lookback window
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the number of bars needed for a full lookback window
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
