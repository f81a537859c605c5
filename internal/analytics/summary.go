package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"stockDataServer/internal/domain"
	"stockDataServer/internal/indicators"
)

const (
	monthLayout = "2006-01"
	atrPeriod   = 14
)

// SeriesSummary holds descriptive statistics of a daily bar series
type SeriesSummary struct {
	// Basic Metrics
	Periods     int     `json:"periods"`
	FirstClose  float64 `json:"first_close"`
	LastClose   float64 `json:"last_close"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`

	// Daily log-return statistics; comparable to a simulation's drift and volatility
	MeanLogReturn   float64 `json:"mean_log_return"`
	StdDevLogReturn float64 `json:"stddev_log_return"`
	ImpliedDrift    float64 `json:"implied_drift"`

	AverageTrueRange float64            `json:"average_true_range"`
	Indicators       map[string]float64 `json:"indicators,omitempty"` // Latest value per indicator name
	MonthlyReturns   map[string]float64 `json:"monthly_returns"`
	Drawdowns        []Drawdown         `json:"drawdowns"`
}

// Drawdown represents a decline from a closing high
type Drawdown struct {
	Start     time.Time `json:"start"` // Date of the peak
	End       time.Time `json:"end"`   // Date of recovery, or the last bar
	Peak      float64   `json:"peak"`
	Trough    float64   `json:"trough"`
	Depth     float64   `json:"depth"`
	Recovered bool      `json:"recovered"`
}

// MonthlyReturn is one entry of SeriesSummary.MonthlyReturns in calendar order
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Summarize calculates descriptive statistics from bars ordered by date.
// Each extra indicator is evaluated on the full series and reported under its Name;
// indicators without enough bars are left out. Statistics that overflow to a
// non-finite value fail with domain.ErrNumericInstability.
func Summarize(bars []domain.PriceBar, extra ...indicators.Indicator) (*SeriesSummary, error) {
	summary := &SeriesSummary{
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
	}
	if len(bars) == 0 {
		return summary, nil
	}

	summary.Periods = len(bars)
	summary.FirstClose = bars[0].Close
	summary.LastClose = bars[len(bars)-1].Close
	if summary.FirstClose > 0 {
		summary.TotalReturn = summary.LastClose/summary.FirstClose - 1
	}

	summarizeReturns(summary, bars)
	summarizeDrawdowns(summary, bars)
	summarizeMonths(summary, bars)

	atr := indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: atrPeriod}})
	if v, ok := evaluate(atr, bars); ok {
		summary.AverageTrueRange = v
	}
	for _, ind := range extra {
		if v, ok := evaluate(ind, bars); ok {
			if summary.Indicators == nil {
				summary.Indicators = make(map[string]float64, len(extra))
			}
			summary.Indicators[ind.Name()] = v
		}
	}

	if err := checkFinite(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func evaluate(ind indicators.Indicator, bars []domain.PriceBar) (float64, bool) {
	if len(bars) < ind.RequiredDataPoints() {
		return 0, false
	}
	v, err := ind.Calculate(context.Background(), bars)
	if err != nil {
		return 0, false
	}
	return v, true
}

// checkFinite rejects summaries that cannot be represented in JSON.
func checkFinite(s *SeriesSummary) error {
	fields := map[string]float64{
		"total_return":       s.TotalReturn,
		"max_drawdown":       s.MaxDrawdown,
		"mean_log_return":    s.MeanLogReturn,
		"stddev_log_return":  s.StdDevLogReturn,
		"implied_drift":      s.ImpliedDrift,
		"average_true_range": s.AverageTrueRange,
	}
	for month, r := range s.MonthlyReturns {
		fields["monthly_returns["+month+"]"] = r
	}
	for name, v := range s.Indicators {
		fields["indicators["+name+"]"] = v
	}
	for name, v := range fields {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%w: summary %s is %v", domain.ErrNumericInstability, name, v)
		}
	}
	return nil
}

func summarizeReturns(summary *SeriesSummary, bars []domain.PriceBar) {
	n := len(bars) - 1
	if n < 1 {
		return
	}
	returns := make([]float64, 0, n)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(bars[i].Close/bars[i-1].Close))
	}
	if len(returns) == 0 {
		return
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	if len(returns) > 1 {
		for _, r := range returns {
			variance += (r - mean) * (r - mean)
		}
		variance /= float64(len(returns) - 1)
	}

	summary.MeanLogReturn = mean
	summary.StdDevLogReturn = math.Sqrt(variance)
	summary.ImpliedDrift = mean + 0.5*variance
}

func summarizeDrawdowns(summary *SeriesSummary, bars []domain.PriceBar) {
	peak := bars[0].Close
	peakDate := bars[0].Date
	var current *Drawdown

	for _, bar := range bars[1:] {
		if bar.Close >= peak {
			if current != nil {
				current.End = bar.Date
				current.Recovered = true
				summary.Drawdowns = append(summary.Drawdowns, *current)
				current = nil
			}
			peak = bar.Close
			peakDate = bar.Date
			continue
		}

		depth := (peak - bar.Close) / peak
		if current == nil {
			current = &Drawdown{Start: peakDate, Peak: peak, Trough: bar.Close, Depth: depth}
		} else if bar.Close < current.Trough {
			current.Trough = bar.Close
			current.Depth = depth
		}
		if depth > summary.MaxDrawdown {
			summary.MaxDrawdown = depth
		}
	}

	// Close any open drawdown
	if current != nil {
		current.End = bars[len(bars)-1].Date
		summary.Drawdowns = append(summary.Drawdowns, *current)
	}
}

// summarizeMonths measures each month from the previous month's last close
// (the first close for the first month) to its own last close.
func summarizeMonths(summary *SeriesSummary, bars []domain.PriceBar) {
	base := bars[0].Close
	for i, bar := range bars {
		last := i == len(bars)-1 || bars[i+1].Date.Format(monthLayout) != bar.Date.Format(monthLayout)
		if !last {
			continue
		}
		if base > 0 {
			summary.MonthlyReturns[bar.Date.Format(monthLayout)] = bar.Close/base - 1
		}
		base = bar.Close
	}
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (s *SeriesSummary) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(s.MonthlyReturns))
	for month, r := range s.MonthlyReturns {
		date, _ := time.Parse(monthLayout, month)
		returns = append(returns, MonthlyReturn{Month: date, Return: r})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
