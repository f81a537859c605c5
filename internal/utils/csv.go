package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stockDataServer/internal/domain"
)

// Column is an extra per-bar series written next to the OHLC fields, e.g. an indicator.
type Column struct {
	Name   string
	Values []float64
}

var historicalHeader = []string{"date", "ticker", "open", "high", "low", "close", "volume", "dividends", "stock_splits"}

// CreateFile creates filename, including missing parent directories.
func CreateFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(filename)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteBarsToCSV writes date, OHLC and the extra columns. NaN values become empty cells.
func WriteBarsToCSV(w io.Writer, bars []domain.PriceBar, extra ...Column) error {
	for _, c := range extra {
		if len(c.Values) != len(bars) {
			return fmt.Errorf("column %s has %d values for %d bars", c.Name, len(c.Values), len(bars))
		}
	}

	writer := csv.NewWriter(w)

	header := []string{"date", "open", "high", "low", "close"}
	for _, c := range extra {
		header = append(header, c.Name)
	}
	writer.Write(header)

	for i, b := range bars {
		record := []string{
			b.Date.Format(domain.DateLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
		}
		for _, c := range extra {
			record = append(record, formatFloat(c.Values[i]))
		}
		writer.Write(record)
	}
	writer.Flush()
	return writer.Error()
}

// WriteHistoricalBarsToCSV writes cached rows in the layout ReadHistoricalBarsFromCSV accepts.
func WriteHistoricalBarsToCSV(w io.Writer, bars []domain.HistoricalBar) error {
	writer := csv.NewWriter(w)
	writer.Write(historicalHeader)

	for _, b := range bars {
		writer.Write([]string{
			b.Date.Format(domain.DateLayout),
			b.Ticker,
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
			formatFloat(b.Dividend),
			formatFloat(b.SplitRatio),
		})
	}
	writer.Flush()
	return writer.Error()
}

// ReadHistoricalBarsFromCSV parses daily rows with a header line. Columns are matched by name,
// case-insensitively; date, open, high, low and close are required. A non-empty ticker overrides
// (or replaces a missing) ticker column.
func ReadHistoricalBarsFromCSV(r io.Reader, ticker string) ([]domain.HistoricalBar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeColumn(name)] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", required)
		}
	}
	_, hasTicker := cols["ticker"]
	if ticker == "" && !hasTicker {
		return nil, errors.New("csv has no ticker column and no ticker was given")
	}
	ticker = domain.NormalizeTicker(ticker)

	bars := make([]domain.HistoricalBar, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var bar domain.HistoricalBar
		bar.Date, err = time.Parse(domain.DateLayout, strings.TrimSpace(record[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}
		bar.Ticker = ticker
		if bar.Ticker == "" {
			bar.Ticker = domain.NormalizeTicker(record[cols["ticker"]])
		}

		fields := []struct {
			name     string
			dst      *float64
			required bool
		}{
			{"open", &bar.Open, true},
			{"high", &bar.High, true},
			{"low", &bar.Low, true},
			{"close", &bar.Close, true},
			{"volume", &bar.Volume, false},
			{"dividends", &bar.Dividend, false},
			{"stock_splits", &bar.SplitRatio, false},
		}
		for _, f := range fields {
			idx, ok := cols[f.name]
			if !ok {
				continue
			}
			v := strings.TrimSpace(record[idx])
			if v == "" {
				if f.required {
					return nil, fmt.Errorf("line %d: empty %s", line, f.name)
				}
				continue
			}
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, f.name, err)
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// normalizeColumn maps common header spellings onto the canonical column names.
func normalizeColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	switch n {
	case "dividend":
		return "dividends"
	case "split_ratio", "splits", "stock_split":
		return "stock_splits"
	case "symbol":
		return "ticker"
	}
	return n
}
