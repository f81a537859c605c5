package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"stockDataServer/config"
	"stockDataServer/internal/analytics"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/indicators"
	"stockDataServer/internal/ports"
	"stockDataServer/internal/simulation"
)

// fetchTimeout bounds a shared provider fetch. The fetch outlives the request that started it.
const fetchTimeout = 2 * time.Minute

// Data sources reported in PriceSeries.Source.
const (
	SourceCache     = "cache"
	SourceSynthetic = "synthetic"
)

// PriceSeries is a ticker's daily history with its RSI and split events.
type PriceSeries struct {
	Ticker string
	Bars   []domain.HistoricalBar
	RSI    []float64
	Splits []domain.Split
	Source string // SourceCache, SourceSynthetic, or the provider name
	Seed   int64  // Set for synthetic series only
}

// SimulationRequest describes one synthetic run.
// A zero Seed picks a fresh one; a zero EndDate uses the configured end date.
// A non-zero Params.StartDate takes precedence over EndDate.
type SimulationRequest struct {
	Params  domain.SimulationParameters
	Seed    int64
	EndDate time.Time
	Workers int
}

// SimulationResult holds the generated bars and their derived series.
type SimulationResult struct {
	Params  domain.SimulationParameters
	Seed    int64
	Bars    []domain.PriceBar
	RSI     []float64
	Summary *analytics.SeriesSummary
}

// PriceService serves cached prices, fills the cache from upstream providers and generates
// synthetic series. It is safe for concurrent use.
type PriceService struct {
	cfg       *config.Config
	logger    ports.Logger
	repo      ports.PriceRepository
	providers []ports.MarketDataProvider
	rsi       *indicators.RSI

	fetches singleflight.Group // Collapses concurrent cache misses for one ticker
	newSeed func() int64
}

// NewPriceService creates a new application service instance.
// Providers are consulted in order; the first that supports a ticker serves it.
func NewPriceService(
	cfg *config.Config,
	logger ports.Logger,
	repo ports.PriceRepository,
	providers ...ports.MarketDataProvider,
) (*PriceService, error) {
	if cfg == nil || logger == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for PriceService")
	}
	if cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("configuration RSIPeriod must be positive: %w", ports.ErrConfigurationError)
	}
	if err := cfg.Simulation.Validate(); err != nil {
		return nil, fmt.Errorf("configuration Simulation: %v: %w", err, ports.ErrConfigurationError)
	}

	return &PriceService{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		providers: providers,
		rsi:       indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod}}),
		newSeed:   func() int64 { return time.Now().UnixNano() },
	}, nil
}

// SimulationDefaults returns the configured parameters used when a caller supplies none.
func (s *PriceService) SimulationDefaults() domain.SimulationParameters {
	return s.cfg.Simulation
}

// ListTickers returns the cached tickers, sorted.
func (s *PriceService) ListTickers(ctx context.Context) ([]string, error) {
	tickers, err := s.repo.ListTickers(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to list tickers")
		return nil, err
	}
	return tickers, nil
}

// GetPrices returns the daily history of a ticker.
//
// Synthetic tickers ("SYNTH", "SYNTH-<seed>") are generated with the configured defaults and
// never cached. "SYNTH" draws a fresh seed; "SYNTH-0" is the same fixed series as the
// default seed. Other tickers are served from the cache; on a miss the first supporting
// provider is queried and the result saved before it is returned. Concurrent misses share
// one fetch, which keeps running when the caller that started it goes away.
func (s *PriceService) GetPrices(ctx context.Context, ticker string) (*PriceSeries, error) {
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", ports.ErrInvalidRequest)
	}

	if seed, ok := domain.ParseSyntheticTicker(ticker); ok {
		if seed == 0 && ticker != domain.SyntheticTicker {
			seed = simulation.DefaultSeed
		}
		return s.syntheticSeries(ctx, ticker, seed)
	}

	cached, err := s.repo.Exists(ctx, ticker)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to check price cache", map[string]interface{}{"ticker": ticker})
		return nil, err
	}

	var bars []domain.HistoricalBar
	if cached {
		bars, err = s.repo.FindByTicker(ctx, ticker)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to read cached prices", map[string]interface{}{"ticker": ticker})
			return nil, err
		}
	}
	source := SourceCache

	if len(bars) == 0 {
		s.logger.Info(ctx, "Cache miss, fetching from provider", map[string]interface{}{"ticker": ticker})
		result, err := s.sharedFetch(ctx, ticker)
		if err != nil {
			return nil, err
		}
		bars, source = result.bars, result.provider
	}

	return s.buildSeries(ticker, bars, source)
}

// sharedFetch joins or starts the fetch for ticker. The fetch runs on a context detached
// from ctx; ctx only bounds how long this caller waits for it.
func (s *PriceService) sharedFetch(ctx context.Context, ticker string) (fetchResult, error) {
	ch := s.fetches.DoChan(ticker, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return s.fetchAndStore(fetchCtx, ticker)
	})

	select {
	case <-ctx.Done():
		return fetchResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fetchResult{}, res.Err
		}
		return res.Val.(fetchResult), nil
	}
}

type fetchResult struct {
	bars     []domain.HistoricalBar
	provider string
}

func (s *PriceService) fetchAndStore(ctx context.Context, ticker string) (fetchResult, error) {
	provider, err := s.providerFor(ticker)
	if err != nil {
		return fetchResult{}, err
	}

	bars, err := provider.FetchHistory(ctx, ticker, time.Time{})
	if err != nil {
		s.logger.Error(ctx, err, "Provider fetch failed", map[string]interface{}{"ticker": ticker, "provider": provider.Name()})
		return fetchResult{}, err
	}
	if len(bars) == 0 {
		return fetchResult{}, fmt.Errorf("%s returned no data for %s: %w", provider.Name(), ticker, ports.ErrNotFound)
	}

	if err := s.repo.SaveBars(ctx, bars); err != nil {
		s.logger.Error(ctx, err, "Failed to cache fetched prices", map[string]interface{}{"ticker": ticker})
		return fetchResult{}, err
	}
	s.logger.Info(ctx, "Cached provider history", map[string]interface{}{
		"ticker": ticker, "provider": provider.Name(), "rows": len(bars),
	})
	return fetchResult{bars: bars, provider: provider.Name()}, nil
}

func (s *PriceService) providerFor(ticker string) (ports.MarketDataProvider, error) {
	for _, p := range s.providers {
		if p.Supports(ticker) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ticker, ports.ErrUnsupportedTicker)
}

func (s *PriceService) buildSeries(ticker string, bars []domain.HistoricalBar, source string) (*PriceSeries, error) {
	rsi, err := indicators.ComputeRSI(domain.HistoricalCloses(bars), s.cfg.RSIPeriod)
	if err != nil {
		return nil, err
	}
	return &PriceSeries{
		Ticker: ticker,
		Bars:   bars,
		RSI:    rsi,
		Splits: domain.SplitsOf(bars),
		Source: source,
	}, nil
}

func (s *PriceService) syntheticSeries(ctx context.Context, ticker string, seed int64) (*PriceSeries, error) {
	result, err := s.Simulate(ctx, SimulationRequest{Params: s.cfg.Simulation, Seed: seed})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.HistoricalBar, len(result.Bars))
	for i, b := range result.Bars {
		bars[i] = domain.HistoricalBar{Ticker: ticker, PriceBar: b}
	}
	return &PriceSeries{
		Ticker: ticker,
		Bars:   bars,
		RSI:    result.RSI,
		Splits: []domain.Split{},
		Source: SourceSynthetic,
		Seed:   result.Seed,
	}, nil
}

// Simulate generates a synthetic bar series with its RSI and summary statistics.
// The output is fully determined by the parameters, seed and calendar.
func (s *PriceService) Simulate(ctx context.Context, req SimulationRequest) (*SimulationResult, error) {
	params := req.Params
	if err := params.Validate(); err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.newSeed()
	}
	workers := req.Workers
	if workers <= 0 {
		workers = s.cfg.SimWorkers
	}

	var calendar []time.Time
	var err error
	if !params.StartDate.IsZero() {
		calendar, err = simulation.BusinessDays(params.StartDate, params.PeriodCount)
	} else {
		end := req.EndDate
		if end.IsZero() {
			end = s.cfg.SimEndDate
		}
		calendar, err = simulation.BusinessDaysEnding(end, params.PeriodCount)
	}
	if err != nil {
		return nil, err
	}
	params.StartDate = calendar[0]

	bars, err := simulation.AssembleBarsParallel(ctx, params, seed, calendar, workers)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidParameter) {
			s.logger.Error(ctx, err, "Simulation failed", map[string]interface{}{"seed": seed})
		}
		return nil, err
	}

	rsi, err := s.rsi.Series(bars)
	if err != nil {
		return nil, err
	}
	summary, err := analytics.Summarize(bars, s.rsi)
	if err != nil {
		s.logger.Warn(ctx, "Simulated series cannot be summarized", map[string]interface{}{
			"seed": seed, "error": err.Error(),
		})
		return nil, err
	}

	s.logger.Debug(ctx, "Generated synthetic series", map[string]interface{}{
		"seed": seed, "periods": params.PeriodCount, "steps": params.IntradayStepCount,
	})
	return &SimulationResult{
		Params:  params,
		Seed:    seed,
		Bars:    bars,
		RSI:     rsi,
		Summary: summary,
	}, nil
}

// RefreshTicker fetches rows from the last cached date onward and upserts them.
// It returns the number of rows saved.
func (s *PriceService) RefreshTicker(ctx context.Context, ticker string) (int, error) {
	ticker = domain.NormalizeTicker(ticker)
	if domain.IsSyntheticTicker(ticker) {
		return 0, nil
	}
	provider, err := s.providerFor(ticker)
	if err != nil {
		return 0, err
	}

	since, err := s.repo.LatestDate(ctx, ticker)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return 0, err
	}

	bars, err := provider.FetchHistory(ctx, ticker, since)
	if err != nil {
		return 0, err
	}
	if err := s.repo.SaveBars(ctx, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// RefreshAll refreshes every cached ticker. Failures are logged and joined; one failing
// ticker does not stop the others.
func (s *PriceService) RefreshAll(ctx context.Context) error {
	tickers, err := s.repo.ListTickers(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Refresh aborted: cannot list tickers")
		return err
	}

	s.logger.Info(ctx, "Refreshing cached tickers", map[string]interface{}{"count": len(tickers)})
	var errs []error
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.RefreshTicker(ctx, ticker)
		if err != nil {
			s.logger.Warn(ctx, "Ticker refresh failed", map[string]interface{}{"ticker": ticker, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			continue
		}
		s.logger.Debug(ctx, "Ticker refreshed", map[string]interface{}{"ticker": ticker, "rows": n})
	}
	return errors.Join(errs...)
}
