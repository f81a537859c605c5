package indicators

import (
	"context"
	"fmt"
	"math"

	"stockDataServer/internal/domain"
)

const (
	// DefaultRSIPeriod is the lookback window used when none is configured
	DefaultRSIPeriod = 14

	// lossEpsilon replaces a zero average loss so the relative strength stays finite
	lossEpsilon = 0.0001

	// neutralRSI is reported where no price change is available yet
	neutralRSI = 50.0
)

// ComputeRSI computes the Relative Strength Index for every position of closes.
//
// Gains and losses of consecutive closes are averaged with a trailing simple mean of width
// period; the first period-1 positions average over however many changes exist. A zero average
// loss is replaced by 0.0001. The first position has no change and is reported as 50.
// The result has the same length as closes and lies in [0, 100].
func ComputeRSI(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: RSI period must be at least 1, got %d", domain.ErrInvalidParameter, period)
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			gains[i], losses[i] = math.NaN(), math.NaN()
			continue
		}
		change := closes[i] - closes[i-1]
		if math.IsNaN(change) {
			gains[i], losses[i] = math.NaN(), math.NaN()
			continue
		}
		gains[i] = math.Max(change, 0)
		losses[i] = math.Max(-change, 0)
	}

	avgGains, err := RollingMean(gains, period, 1)
	if err != nil {
		return nil, err
	}
	avgLosses, err := RollingMean(losses, period, 1)
	if err != nil {
		return nil, err
	}

	rsi := make([]float64, len(closes))
	for i := range closes {
		avgLoss := avgLosses[i]
		if avgLoss == 0 {
			avgLoss = lossEpsilon
		}
		rs := avgGains[i] / avgLoss
		value := 100 - 100/(1+rs)
		if math.IsNaN(value) {
			value = neutralRSI
		}
		rsi[i] = value
	}
	return rsi, nil
}

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator over daily bars
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	if config.Period <= 0 {
		config.Period = DefaultRSIPeriod
	}
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// Series computes the RSI for every bar
func (r *RSI) Series(bars []domain.PriceBar) ([]float64, error) {
	return ComputeRSI(domain.Closes(bars), r.Config.Period)
}

// Calculate returns the RSI of the last bar
func (r *RSI) Calculate(ctx context.Context, bars []domain.PriceBar) (float64, error) {
	if len(bars) < 2 {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI", len(bars))
	}
	series, err := r.Series(bars)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
