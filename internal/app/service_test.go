package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockDataServer/config"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockRepo struct {
	mu        sync.Mutex
	rows      map[string][]domain.HistoricalBar
	saveCalls   int
	existsCalls int
	existsErr   error
	findErr     error
	saveErr     error
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string][]domain.HistoricalBar)}
}

func (m *mockRepo) SaveBars(ctx context.Context, bars []domain.HistoricalBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, b := range bars {
		t := domain.NormalizeTicker(b.Ticker)
		existing := m.rows[t]
		replaced := false
		for i := range existing {
			if existing[i].Date.Equal(b.Date) {
				existing[i] = b
				replaced = true
			}
		}
		if !replaced {
			existing = append(existing, b)
		}
		sort.Slice(existing, func(i, j int) bool { return existing[i].Date.Before(existing[j].Date) })
		m.rows[t] = existing
	}
	return nil
}

func (m *mockRepo) FindByTicker(ctx context.Context, ticker string) ([]domain.HistoricalBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	return append([]domain.HistoricalBar{}, m.rows[ticker]...), nil
}

func (m *mockRepo) Exists(ctx context.Context, ticker string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return len(m.rows[ticker]) > 0, nil
}

func (m *mockRepo) ListTickers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tickers := make([]string, 0, len(m.rows))
	for t := range m.rows {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

func (m *mockRepo) LatestDate(ctx context.Context, ticker string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[ticker]
	if len(rows) == 0 {
		return time.Time{}, ports.ErrNotFound
	}
	return rows[len(rows)-1].Date, nil
}

func (m *mockRepo) Close() error { return nil }

type mockProvider struct {
	name      string
	suffix    string // Supported ticker suffix; empty supports everything
	bars      map[string][]domain.HistoricalBar
	err       error
	calls     int
	lastSince time.Time
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Supports(ticker string) bool {
	return m.suffix == "" || (len(ticker) > len(m.suffix) && ticker[len(ticker)-len(m.suffix):] == m.suffix)
}

func (m *mockProvider) FetchHistory(ctx context.Context, ticker string, since time.Time) ([]domain.HistoricalBar, error) {
	m.calls++
	m.lastSince = since
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.HistoricalBar, 0)
	for _, b := range m.bars[ticker] {
		if since.IsZero() || !b.Date.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func date(s string) time.Time {
	d, _ := time.Parse(domain.DateLayout, s)
	return d
}

func hist(ticker, d string, close, split float64) domain.HistoricalBar {
	return domain.HistoricalBar{
		Ticker:     ticker,
		PriceBar:   domain.PriceBar{Date: date(d), Open: close, High: close, Low: close, Close: close},
		SplitRatio: split,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		RSIPeriod: 14,
		Simulation: domain.SimulationParameters{
			StartPrice:        100,
			Drift:             0.01,
			Volatility:        0.1,
			PeriodCount:       30,
			IntradayStepCount: 10,
		},
		SimEndDate: date("2025-01-01"),
		SimWorkers: 2,
	}
}

func newTestService(t *testing.T, repo *mockRepo, providers ...ports.MarketDataProvider) *PriceService {
	t.Helper()
	svc, err := NewPriceService(testConfig(), &mockLogger{}, repo, providers...)
	require.NoError(t, err)
	return svc
}

func TestNewPriceService_Validation(t *testing.T) {
	_, err := NewPriceService(nil, &mockLogger{}, newMockRepo())
	assert.Error(t, err)

	_, err = NewPriceService(testConfig(), nil, newMockRepo())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.RSIPeriod = 0
	_, err = NewPriceService(cfg, &mockLogger{}, newMockRepo())
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = testConfig()
	cfg.Simulation.Volatility = -1
	_, err = NewPriceService(cfg, &mockLogger{}, newMockRepo())
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestGetPrices_CacheHit(t *testing.T) {
	repo := newMockRepo()
	require.NoError(t, repo.SaveBars(context.Background(), []domain.HistoricalBar{
		hist("AAPL", "2020-08-28", 500, 0),
		hist("AAPL", "2020-08-31", 129, 4),
		hist("AAPL", "2020-09-01", 134, 0),
	}))
	provider := &mockProvider{name: "yahoo"}
	svc := newTestService(t, repo, provider)

	series, err := svc.GetPrices(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", series.Ticker)
	assert.Equal(t, SourceCache, series.Source)
	assert.Len(t, series.Bars, 3)
	require.Len(t, series.RSI, 3)
	assert.Equal(t, 50.0, series.RSI[0])
	assert.Equal(t, []domain.Split{{Date: date("2020-08-31"), Ratio: 4}}, series.Splits)
	assert.Equal(t, 0, provider.calls)
}

func TestGetPrices_CacheMissFetchesAndStores(t *testing.T) {
	repo := newMockRepo()
	crypto := &mockProvider{name: "binance", suffix: "USDT"}
	equities := &mockProvider{name: "yahoo", bars: map[string][]domain.HistoricalBar{
		"MSFT": {hist("MSFT", "2024-01-02", 370, 0), hist("MSFT", "2024-01-03", 371, 0)},
	}}
	svc := newTestService(t, repo, crypto, equities)

	series, err := svc.GetPrices(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "yahoo", series.Source)
	assert.Len(t, series.Bars, 2)
	assert.Equal(t, 0, crypto.calls, "crypto provider does not support MSFT")
	assert.Equal(t, 1, equities.calls)
	assert.True(t, equities.lastSince.IsZero(), "cache miss requests full history")

	// Second request is served from the cache
	series, err = svc.GetPrices(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, series.Source)
	assert.Equal(t, 1, equities.calls)
}

func TestGetPrices_Errors(t *testing.T) {
	t.Run("empty ticker", func(t *testing.T) {
		svc := newTestService(t, newMockRepo())
		_, err := svc.GetPrices(context.Background(), "  ")
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	})

	t.Run("no provider supports ticker", func(t *testing.T) {
		svc := newTestService(t, newMockRepo(), &mockProvider{name: "binance", suffix: "USDT"})
		_, err := svc.GetPrices(context.Background(), "TSLA")
		assert.ErrorIs(t, err, ports.ErrUnsupportedTicker)
	})

	t.Run("provider failure is not cached", func(t *testing.T) {
		repo := newMockRepo()
		svc := newTestService(t, repo, &mockProvider{name: "yahoo", err: ports.ErrProviderUnavailable})
		_, err := svc.GetPrices(context.Background(), "TSLA")
		assert.ErrorIs(t, err, ports.ErrProviderUnavailable)
		assert.Equal(t, 0, repo.saveCalls)
	})

	t.Run("provider returns nothing", func(t *testing.T) {
		svc := newTestService(t, newMockRepo(), &mockProvider{name: "yahoo"})
		_, err := svc.GetPrices(context.Background(), "ZZZZ")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("cache read failure", func(t *testing.T) {
		repo := newMockRepo()
		require.NoError(t, repo.SaveBars(context.Background(), []domain.HistoricalBar{hist("TSLA", "2024-01-02", 248, 0)}))
		repo.findErr = ports.ErrQueryFailed
		svc := newTestService(t, repo)
		_, err := svc.GetPrices(context.Background(), "TSLA")
		assert.ErrorIs(t, err, ports.ErrQueryFailed)
	})

	t.Run("cache check failure", func(t *testing.T) {
		repo := newMockRepo()
		repo.existsErr = ports.ErrDBConnection
		provider := &mockProvider{name: "yahoo"}
		svc := newTestService(t, repo, provider)
		_, err := svc.GetPrices(context.Background(), "TSLA")
		assert.ErrorIs(t, err, ports.ErrDBConnection)
		assert.Equal(t, 0, provider.calls)
	})
}

func TestGetPrices_ChecksCacheBeforeReading(t *testing.T) {
	repo := newMockRepo()
	repo.findErr = ports.ErrQueryFailed // Must not be reached for an uncached ticker
	provider := &mockProvider{name: "yahoo", bars: map[string][]domain.HistoricalBar{
		"NVDA": {hist("NVDA", "2024-01-02", 48, 0)},
	}}
	svc := newTestService(t, repo, provider)

	series, err := svc.GetPrices(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "yahoo", series.Source)
	assert.Equal(t, 1, repo.existsCalls)
	assert.Equal(t, 1, provider.calls)
}

// blockingProvider holds FetchHistory until release is closed and fails if its context
// was canceled by then.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	bars    []domain.HistoricalBar

	mu    sync.Mutex
	calls int
}

func (b *blockingProvider) Name() string { return "yahoo" }

func (b *blockingProvider) Supports(ticker string) bool { return true }

func (b *blockingProvider) FetchHistory(ctx context.Context, ticker string, since time.Time) ([]domain.HistoricalBar, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.started)
	}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.bars, nil
}

func TestGetPrices_FetchSurvivesCanceledCaller(t *testing.T) {
	repo := newMockRepo()
	provider := &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		bars:    []domain.HistoricalBar{hist("AMD", "2024-01-02", 138, 0), hist("AMD", "2024-01-03", 136, 0)},
	}
	svc := newTestService(t, repo, provider)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetPrices(firstCtx, "AMD")
		firstErr <- err
	}()
	<-provider.started

	type outcome struct {
		series *PriceSeries
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		series, err := svc.GetPrices(context.Background(), "AMD")
		second <- outcome{series, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(provider.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.series.Bars, 2)

	rows, err := repo.FindByTicker(context.Background(), "AMD")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "fetch started by the canceled caller is still cached")
}

func TestGetPrices_SyntheticNeverCached(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{name: "yahoo"}
	svc := newTestService(t, repo, provider)

	first, err := svc.GetPrices(context.Background(), "synth-42")
	require.NoError(t, err)
	second, err := svc.GetPrices(context.Background(), "SYNTH-42")
	require.NoError(t, err)

	assert.Equal(t, SourceSynthetic, first.Source)
	assert.Equal(t, int64(42), first.Seed)
	assert.Equal(t, "SYNTH-42", first.Ticker)
	assert.Len(t, first.Bars, 30)
	assert.Len(t, first.RSI, 30)
	assert.Empty(t, first.Splits)
	assert.Equal(t, first.Bars, second.Bars, "same seed yields the same series")
	assert.False(t, first.Bars[len(first.Bars)-1].Date.After(date("2025-01-01")))
	assert.Equal(t, 100.0, first.Bars[0].Open)

	assert.Equal(t, 0, repo.saveCalls)
	assert.Equal(t, 0, provider.calls)
}

func TestGetPrices_SyntheticSeedZeroIsFixed(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	seeds := []int64{7, 8}
	svc.newSeed = func() int64 {
		seed := seeds[0]
		seeds = seeds[1:]
		return seed
	}

	first, err := svc.GetPrices(context.Background(), "SYNTH-0")
	require.NoError(t, err)
	second, err := svc.GetPrices(context.Background(), "synth-0")
	require.NoError(t, err)
	seedOne, err := svc.GetPrices(context.Background(), "SYNTH-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seed)
	assert.Equal(t, first.Bars, second.Bars)
	assert.Equal(t, seedOne.Bars, first.Bars)
	assert.Len(t, seeds, 2, "SYNTH-0 never draws a fresh seed")
}

func TestGetPrices_BareSyntheticPicksSeed(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	svc.newSeed = func() int64 { return 7 }

	series, err := svc.GetPrices(context.Background(), "SYNTH")
	require.NoError(t, err)
	assert.Equal(t, int64(7), series.Seed)
}

func TestSimulate(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	params := testConfig().Simulation
	params.StartDate = date("2024-03-01")

	result, err := svc.Simulate(context.Background(), SimulationRequest{Params: params, Seed: 99, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, int64(99), result.Seed)
	require.Len(t, result.Bars, 30)
	assert.Equal(t, date("2024-03-01"), result.Bars[0].Date)
	assert.Equal(t, date("2024-03-01"), result.Params.StartDate)
	assert.Len(t, result.RSI, 30)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 30, result.Summary.Periods)
	assert.Equal(t, result.RSI[len(result.RSI)-1], result.Summary.Indicators["RSI"])

	for _, bar := range result.Bars {
		assert.NoError(t, bar.Validate())
	}

	// Worker count does not change the output
	again, err := svc.Simulate(context.Background(), SimulationRequest{Params: params, Seed: 99, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, result.Bars, again.Bars)
}

func TestSimulate_EndDate(t *testing.T) {
	svc := newTestService(t, newMockRepo())

	result, err := svc.Simulate(context.Background(), SimulationRequest{
		Params:  testConfig().Simulation,
		Seed:    5,
		EndDate: date("2024-06-30"), // Sunday
	})
	require.NoError(t, err)
	assert.Equal(t, date("2024-06-28"), result.Bars[len(result.Bars)-1].Date)
}

func TestSimulate_SummaryOverflow(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	params := domain.SimulationParameters{
		StartPrice:        1e-300,
		Drift:             0.069,
		Volatility:        0,
		PeriodCount:       20000,
		IntradayStepCount: 1,
	}

	// Every close is finite but the last/first ratio exceeds float64
	result, err := svc.Simulate(context.Background(), SimulationRequest{Params: params, Seed: 3})
	assert.ErrorIs(t, err, domain.ErrNumericInstability)
	assert.Nil(t, result)
}

func TestSimulate_InvalidParameters(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	params := testConfig().Simulation
	params.PeriodCount = 0

	_, err := svc.Simulate(context.Background(), SimulationRequest{Params: params, Seed: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestRefreshAll(t *testing.T) {
	repo := newMockRepo()
	require.NoError(t, repo.SaveBars(context.Background(), []domain.HistoricalBar{
		hist("IBM", "2024-01-02", 161, 0),
		hist("IBM", "2024-01-03", 158, 0),
		hist("ETHUSDT", "2024-01-02", 2350, 0),
	}))

	equities := &mockProvider{name: "yahoo", suffix: "M", bars: map[string][]domain.HistoricalBar{
		"IBM": {
			hist("IBM", "2024-01-03", 158.5, 0),
			hist("IBM", "2024-01-04", 158.2, 0),
		},
	}}
	crypto := &mockProvider{name: "binance", suffix: "USDT", err: errors.New("exchange down")}
	logger := &mockLogger{}
	svc, err := NewPriceService(testConfig(), logger, repo, crypto, equities)
	require.NoError(t, err)

	err = svc.RefreshAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETHUSDT")
	assert.NotContains(t, err.Error(), "IBM")
	assert.Len(t, logger.warnMsgs, 1)

	assert.Equal(t, date("2024-01-03"), equities.lastSince, "refresh starts at the last cached date")
	rows, err := repo.FindByTicker(context.Background(), "IBM")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 158.5, rows[1].Close, "overlapping day is replaced")
	assert.Equal(t, date("2024-01-04"), rows[2].Date)
}
