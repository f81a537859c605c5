package simulation

import (
	"fmt"
	"math"

	"stockDataServer/internal/domain"
)

// GenerateCloseSeries returns periodCount daily closes following geometric Brownian motion
// with a unit time step:
//
//	S[t] = S[t-1] * exp((μ - σ²/2) + σ·Z),  Z ~ N(0,1)
//
// series[0] is startPrice exactly. With volatility 0 the series is a deterministic
// exponential drift and rng is never consulted.
func GenerateCloseSeries(startPrice, drift, volatility float64, periodCount int, rng RandomSource) ([]float64, error) {
	if periodCount < 1 {
		return nil, fmt.Errorf("%w: period count must be at least 1, got %d", domain.ErrInvalidParameter, periodCount)
	}
	if !isFinite(startPrice) || startPrice <= 0 {
		return nil, fmt.Errorf("%w: start price must be positive and finite, got %v", domain.ErrInvalidParameter, startPrice)
	}
	if !isFinite(volatility) || volatility < 0 {
		return nil, fmt.Errorf("%w: volatility must be non-negative and finite, got %v", domain.ErrInvalidParameter, volatility)
	}
	if !isFinite(drift) {
		return nil, fmt.Errorf("%w: drift must be finite, got %v", domain.ErrInvalidParameter, drift)
	}
	if rng == nil && volatility > 0 && periodCount > 1 {
		return nil, fmt.Errorf("%w: random source is required", domain.ErrInvalidParameter)
	}

	prices := make([]float64, periodCount)
	prices[0] = startPrice
	driftTerm := drift - 0.5*volatility*volatility
	for t := 1; t < periodCount; t++ {
		shock := 0.0
		if volatility > 0 {
			shock = volatility * rng.NormFloat64()
		}
		prices[t] = prices[t-1] * math.Exp(driftTerm+shock)
		if !isFinite(prices[t]) || prices[t] <= 0 {
			return nil, fmt.Errorf("%w: close at period %d became %v", domain.ErrNumericInstability, t, prices[t])
		}
	}
	return prices, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
