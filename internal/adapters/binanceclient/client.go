package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	dailyInterval = "1d"
	quoteSuffix   = "USDT"
)

// DefaultHistoryStart is the first day of USDT-margined futures trading on Binance.
var DefaultHistoryStart = time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)

// Client implements the ports.MarketDataProvider interface for USDT-margined futures
// using the go-binance library. Only public market data endpoints are used.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	historyStart  time.Time
	now           func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey       string
	SecretKey    string
	UseTestnet   bool
	BaseURL      string    // Overrides the production/testnet URL when set
	HistoryStart time.Time // First day requested for a full-history fetch
	Logger       ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	historyStart := cfg.HistoryStart
	if historyStart.IsZero() {
		historyStart = DefaultHistoryStart
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		historyStart:  domain.TruncateToDay(historyStart),
		now:           time.Now,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1022, -2014, -2015: // Signature or API-key rejected
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrProviderUnavailable
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Context errors pass through so callers can tell cancellation from upstream failure
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrProviderUnavailable, err)
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "binance" }

// Supports accepts USDT-quoted symbols such as BTCUSDT.
func (c *Client) Supports(ticker string) bool {
	t := domain.NormalizeTicker(ticker)
	return len(t) > len(quoteSuffix) && strings.HasSuffix(t, quoteSuffix)
}

// Ping checks connectivity to the futures API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

// FetchHistory retrieves daily klines from since (or the configured history start) until now.
func (c *Client) FetchHistory(ctx context.Context, ticker string, since time.Time) ([]domain.HistoricalBar, error) {
	symbol := domain.NormalizeTicker(ticker)
	if !c.Supports(symbol) {
		return nil, fmt.Errorf("binance: %s is not a USDT symbol: %w", symbol, ports.ErrUnsupportedTicker)
	}
	start := c.historyStart
	if !since.IsZero() {
		start = domain.TruncateToDay(since)
	}

	bars, err := c.GetKlinesRange(ctx, symbol, dailyInterval, start, c.now())
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 && since.IsZero() {
		return nil, fmt.Errorf("binance: no klines for %s: %w", symbol, ports.ErrNotFound)
	}
	c.logger.Info(ctx, "Fetched Binance history", map[string]interface{}{"ticker": symbol, "rows": len(bars)})
	return bars, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.HistoricalBar, error) {
	op := "GetKlinesRange"
	allBars := make([]domain.HistoricalBar, 0)
	const maxLimit = 1500
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			bar, err := translateBinanceKline(bk, symbol)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allBars = append(allBars, bar)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	return allBars, nil
}

// parseDecimal parses an exchange price string exactly before converting to float64.
func parseDecimal(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s '%s': %w", field, s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func translateBinanceKline(bk *futures.Kline, symbol string) (domain.HistoricalBar, error) {
	if bk == nil {
		return domain.HistoricalBar{}, errors.New("received nil historical kline")
	}
	open, err := parseDecimal("open price", bk.Open)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	high, err := parseDecimal("high price", bk.High)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	low, err := parseDecimal("low price", bk.Low)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	cls, err := parseDecimal("close price", bk.Close)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	vol, err := parseDecimal("volume", bk.Volume)
	if err != nil {
		return domain.HistoricalBar{}, err
	}

	return domain.HistoricalBar{
		Ticker: symbol,
		PriceBar: domain.PriceBar{
			Date:  domain.TruncateToDay(time.UnixMilli(bk.OpenTime)),
			Open:  open,
			High:  high,
			Low:   low,
			Close: cls,
		},
		Volume: vol,
	}, nil
}
