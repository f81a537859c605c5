package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceBar represents a single daily Open/High/Low/Close bar.
type PriceBar struct {
	Date  time.Time // Trading day (UTC midnight)
	Open  float64   // Opening price
	High  float64   // Highest price of the day
	Low   float64   // Lowest price of the day
	Close float64   // Closing price
}

// Validate checks the bar envelope: high >= max(open, close) and low <= min(open, close).
func (b PriceBar) Validate() error {
	if b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("%w: bar %s high %.10g below max(open %.10g, close %.10g)",
			ErrInvariantViolation, b.Date.Format(DateLayout), b.High, b.Open, b.Close)
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("%w: bar %s low %.10g above min(open %.10g, close %.10g)",
			ErrInvariantViolation, b.Date.Format(DateLayout), b.Low, b.Open, b.Close)
	}
	return nil
}

// HistoricalBar is a cached daily row for a ticker, as returned by upstream providers.
type HistoricalBar struct {
	Ticker string
	PriceBar
	Volume     float64 // Traded volume
	Dividend   float64 // Cash dividend paid on this day (0 if none)
	SplitRatio float64 // Split ratio effective on this day (0 if none)
}

// Split represents a stock split event.
type Split struct {
	Date  time.Time
	Ratio float64
}

// Closes extracts the close prices of the bars in order.
func Closes(bars []PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// HistoricalCloses extracts the close prices of cached rows in order.
func HistoricalCloses(rows []HistoricalBar) []float64 {
	closes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Close
	}
	return closes
}

// SplitsOf returns the split events contained in the rows, oldest first.
func SplitsOf(rows []HistoricalBar) []Split {
	splits := make([]Split, 0)
	for _, r := range rows {
		if r.SplitRatio > 0 {
			splits = append(splits, Split{Date: r.Date, Ratio: r.SplitRatio})
		}
	}
	return splits
}
