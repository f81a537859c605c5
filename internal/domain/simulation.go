package domain

import (
	"fmt"
	"math"
	"time"
)

// SimulationParameters fully determines a synthetic run together with a random source.
// It is passed by value and never mutated by the simulator.
type SimulationParameters struct {
	StartPrice        float64   // Price of the first bar (> 0)
	Drift             float64   // Daily drift μ
	Volatility        float64   // Daily volatility σ (>= 0)
	PeriodCount       int       // Number of daily bars (>= 1)
	IntradayStepCount int       // Points in each intraday bridge path (>= 1)
	StartDate         time.Time // First trading day
}

// DefaultSimulationParameters returns the parameters used when a caller supplies none:
// one trading year of bars starting at 100 with 1% daily drift and 10% daily volatility.
func DefaultSimulationParameters() SimulationParameters {
	return SimulationParameters{
		StartPrice:        100.0,
		Drift:             0.01,
		Volatility:        0.1,
		PeriodCount:       252,
		IntradayStepCount: 100,
	}
}

// Validate reports ErrInvalidParameter for malformed inputs.
func (p SimulationParameters) Validate() error {
	switch {
	case math.IsNaN(p.StartPrice) || math.IsInf(p.StartPrice, 0) || p.StartPrice <= 0:
		return fmt.Errorf("%w: start price must be positive and finite, got %v", ErrInvalidParameter, p.StartPrice)
	case math.IsNaN(p.Drift) || math.IsInf(p.Drift, 0):
		return fmt.Errorf("%w: drift must be finite, got %v", ErrInvalidParameter, p.Drift)
	case math.IsNaN(p.Volatility) || math.IsInf(p.Volatility, 0) || p.Volatility < 0:
		return fmt.Errorf("%w: volatility must be non-negative and finite, got %v", ErrInvalidParameter, p.Volatility)
	case p.PeriodCount < 1:
		return fmt.Errorf("%w: period count must be at least 1, got %d", ErrInvalidParameter, p.PeriodCount)
	case p.IntradayStepCount < 1:
		return fmt.Errorf("%w: intraday step count must be at least 1, got %d", ErrInvalidParameter, p.IntradayStepCount)
	}
	return nil
}
