package simulation

import (
	"fmt"
	"time"

	"stockDataServer/internal/domain"
)

// AssembleBars builds params.PeriodCount daily bars.
//
// Closes come from GenerateCloseSeries. Day 0 opens at the start price and every later day
// opens at the previous close (no overnight gap). High and low are the extremes of the day's
// intraday bridge path. Bars are dated from calendar, which must hold at least PeriodCount dates.
//
// All draws come from rng in a fixed order (closes first, then each day's bridge), so the same
// seed reproduces the same bars.
func AssembleBars(params domain.SimulationParameters, rng RandomSource, calendar []time.Time) ([]domain.PriceBar, error) {
	closes, err := prepareCloses(params, rng, calendar)
	if err != nil {
		return nil, err
	}

	bars := make([]domain.PriceBar, params.PeriodCount)
	for day := range bars {
		bar, err := assembleDay(params, closes, day, calendar[day], rng)
		if err != nil {
			return nil, err
		}
		bars[day] = bar
	}
	return bars, nil
}

func prepareCloses(params domain.SimulationParameters, rng RandomSource, calendar []time.Time) ([]float64, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(calendar) < params.PeriodCount {
		return nil, fmt.Errorf("%w: calendar has %d dates, need %d", domain.ErrInvalidParameter, len(calendar), params.PeriodCount)
	}
	closes, err := GenerateCloseSeries(params.StartPrice, params.Drift, params.Volatility, params.PeriodCount, rng)
	if err != nil {
		return nil, fmt.Errorf("generate close series: %w", err)
	}
	return closes, nil
}

// assembleDay builds the bar for one day given the full close series.
func assembleDay(params domain.SimulationParameters, closes []float64, day int, date time.Time, rng RandomSource) (domain.PriceBar, error) {
	open := params.StartPrice
	if day > 0 {
		open = closes[day-1]
	}
	closePrice := closes[day]

	path, err := GenerateIntradayPath(open, closePrice, params.IntradayStepCount, params.Volatility, rng)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("generate intraday path for day %d: %w", day, err)
	}
	high, low := pathExtremes(path)

	bar := domain.PriceBar{
		Date:  domain.TruncateToDay(date),
		Open:  open,
		High:  high,
		Low:   low,
		Close: closePrice,
	}
	if err := bar.Validate(); err != nil {
		return domain.PriceBar{}, fmt.Errorf("assemble day %d: %w", day, err)
	}
	return bar, nil
}
