package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/domain"
)

func testOptions() options {
	return options{
		params: domain.SimulationParameters{
			StartPrice:        100,
			Drift:             0.001,
			Volatility:        0.02,
			PeriodCount:       30,
			IntradayStepCount: 20,
		},
		seed:      42,
		end:       "2025-01-01",
		rsiPeriod: 14,
	}
}

func runToRecords(t *testing.T, opts options) [][]string {
	t.Helper()
	var buf bytes.Buffer
	log := logger.NewStdLoggerWithWriter(&bytes.Buffer{}, logger.LevelDebug)
	summary, err := run(context.Background(), log, opts, &buf)
	require.NoError(t, err)
	assert.Equal(t, opts.params.PeriodCount, summary.Periods)
	assert.Contains(t, summary.Indicators, "RSI")

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRun_WritesBarsWithIndicators(t *testing.T) {
	records := runToRecords(t, testOptions())
	require.Len(t, records, 31)
	assert.Equal(t, []string{"date", "open", "high", "low", "close", "rsi", "sma20"}, records[0])

	first := records[1]
	assert.Equal(t, "100", first[1])
	assert.Equal(t, "50", first[5]) // RSI seed value
	assert.Equal(t, "", first[6])   // SMA warm-up

	last := records[30]
	assert.Equal(t, "2025-01-01", last[0])
	assert.NotEmpty(t, last[6])

	for _, r := range records[1:] {
		open, _ := strconv.ParseFloat(r[1], 64)
		high, _ := strconv.ParseFloat(r[2], 64)
		low, _ := strconv.ParseFloat(r[3], 64)
		cl, _ := strconv.ParseFloat(r[4], 64)
		assert.GreaterOrEqual(t, high, max(open, cl))
		assert.LessOrEqual(t, low, min(open, cl))
	}
}

func TestRun_Reproducible(t *testing.T) {
	assert.Equal(t, runToRecords(t, testOptions()), runToRecords(t, testOptions()))
}

func TestRun_StartDate(t *testing.T) {
	opts := testOptions()
	opts.start = "2024-01-06" // Saturday
	records := runToRecords(t, opts)
	assert.Equal(t, "2024-01-08", records[1][0])
}

func TestRun_Errors(t *testing.T) {
	log := logger.NewStdLoggerWithWriter(&bytes.Buffer{}, logger.LevelError)

	opts := testOptions()
	opts.params.Volatility = -1
	_, err := run(context.Background(), log, opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	opts = testOptions()
	opts.end = "not-a-date"
	_, err = run(context.Background(), log, opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	opts = testOptions()
	opts.rsiPeriod = 0
	_, err = run(context.Background(), log, opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}
