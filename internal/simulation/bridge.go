package simulation

import (
	"fmt"
	"math"

	"stockDataServer/internal/domain"
)

// GenerateIntradayPath returns a stepCount-point intraday price path that starts at openPrice
// and ends at closePrice.
//
// The path is a discrete Brownian bridge: stepCount-1 log-return shocks with standard deviation
// volatility/sqrt(stepCount) are drawn and accumulated from openPrice, then the log gap between
// that trial path's end and closePrice is spread evenly across the shocks and the path is rebuilt.
// The shape of the random walk survives while the terminal value is pinned.
//
// A stepCount below 2 returns [openPrice, closePrice].
func GenerateIntradayPath(openPrice, closePrice float64, stepCount int, volatility float64, rng RandomSource) ([]float64, error) {
	if stepCount < 1 {
		return nil, fmt.Errorf("%w: intraday step count must be at least 1, got %d", domain.ErrInvalidParameter, stepCount)
	}
	if !isFinite(openPrice) || openPrice <= 0 {
		return nil, fmt.Errorf("%w: open price must be positive and finite, got %v", domain.ErrInvalidParameter, openPrice)
	}
	if !isFinite(closePrice) || closePrice <= 0 {
		return nil, fmt.Errorf("%w: close price must be positive and finite, got %v", domain.ErrInvalidParameter, closePrice)
	}
	if !isFinite(volatility) || volatility < 0 {
		return nil, fmt.Errorf("%w: volatility must be non-negative and finite, got %v", domain.ErrInvalidParameter, volatility)
	}
	if stepCount < 2 {
		return []float64{openPrice, closePrice}, nil
	}
	if rng == nil && volatility > 0 {
		return nil, fmt.Errorf("%w: random source is required", domain.ErrInvalidParameter)
	}

	returns := make([]float64, stepCount-1)
	if volatility > 0 {
		stdDev := volatility / math.Sqrt(float64(stepCount))
		for i := range returns {
			returns[i] = stdDev * rng.NormFloat64()
		}
	}

	// Trial pass: only the terminal value is needed.
	trialEnd := openPrice
	for _, r := range returns {
		trialEnd *= math.Exp(r)
	}
	if !isFinite(trialEnd) || trialEnd <= 0 {
		return nil, fmt.Errorf("%w: trial intraday path ended at %v", domain.ErrNumericInstability, trialEnd)
	}

	adjustment := math.Log(closePrice/trialEnd) / float64(len(returns))

	path := make([]float64, stepCount)
	path[0] = openPrice
	current := openPrice
	for i, r := range returns {
		current *= math.Exp(r + adjustment)
		if !isFinite(current) || current <= 0 {
			return nil, fmt.Errorf("%w: intraday price at step %d became %v", domain.ErrNumericInstability, i+1, current)
		}
		path[i+1] = current
	}
	// The correction lands on closePrice up to rounding; store it exactly.
	path[stepCount-1] = closePrice
	return path, nil
}

// pathExtremes returns the maximum and minimum of a non-empty path.
func pathExtremes(path []float64) (high, low float64) {
	high, low = path[0], path[0]
	for _, p := range path[1:] {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}
	return high, low
}
