package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockDataServer/internal/domain"
	"stockDataServer/internal/httputil"
	"stockDataServer/internal/ports"
)

// DefaultBaseURL is the public Yahoo Finance API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client implements ports.MarketDataProvider using the Yahoo Finance chart API.
// Prices are split- and dividend-adjusted: open, high and low are scaled by adjclose/close
// and close is replaced by adjclose. Volume is reported as traded.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	logger     ports.Logger
	symbolMap  map[string]string // maps internal ticker to Yahoo symbol
}

// Config holds configuration for the Yahoo client.
type Config struct {
	BaseURL  string
	ProxyURL string
	Timeout  time.Duration
	Retry    *httputil.RetryConfig // nil uses httputil.DefaultRetry
	Logger   ports.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Yahoo client")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %v: %w", cfg.ProxyURL, err, ports.ErrConfigurationError)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	retry := httputil.DefaultRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	retry.Logger = cfg.Logger

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		retry:      retry,
		logger:     cfg.Logger,
		symbolMap: map[string]string{
			"SPX":   "^GSPC",
			"SP500": "^GSPC",
			"DJI":   "^DJI",
			"VIX":   "^VIX",
		},
	}, nil
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "yahoo" }

// Supports accepts any non-synthetic ticker; Yahoo reports unknown symbols as not found.
func (c *Client) Supports(ticker string) bool {
	t := domain.NormalizeTicker(ticker)
	return t != "" && !domain.IsSyntheticTicker(t)
}

func (c *Client) yahooSymbol(ticker string) string {
	if mapped, ok := c.symbolMap[ticker]; ok {
		return mapped
	}
	return ticker
}

// chartResponse is the response structure from the Yahoo Finance chart API.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64   `json:"date"`
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// at returns the i-th value, or 0 when missing or null.
func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// FetchHistory retrieves adjusted daily rows with dividends and splits.
func (c *Client) FetchHistory(ctx context.Context, ticker string, since time.Time) ([]domain.HistoricalBar, error) {
	ticker = domain.NormalizeTicker(ticker)
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("events", "div|split")
	query.Set("includeAdjustedClose", "true")
	if since.IsZero() {
		query.Set("range", "max")
	} else {
		query.Set("period1", strconv.FormatInt(domain.TruncateToDay(since).Unix(), 10))
		query.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(c.yahooSymbol(ticker)), query.Encode())

	c.logger.Debug(ctx, "Fetching Yahoo chart", map[string]interface{}{"ticker": ticker, "since": since.Format(domain.DateLayout)})

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %v: %w", err, ports.ErrProviderUnavailable)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)
	if resp.StatusCode == http.StatusNotFound || (decodeErr == nil && chart.Chart.Error != nil && chart.Chart.Error.Code == "Not Found") {
		return nil, fmt.Errorf("yahoo: unknown ticker %s: %w", ticker, ports.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s: %w", resp.StatusCode, truncate(body, 256), ports.ErrProviderUnavailable)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("yahoo decode: %v: %w", decodeErr, ports.ErrProviderUnavailable)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s: %w", chart.Chart.Error.Description, ports.ErrProviderUnavailable)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s: %w", ticker, ports.ErrNotFound)
	}

	bars := translateChart(ticker, &chart)
	if !since.IsZero() {
		cutoff := domain.TruncateToDay(since)
		i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(cutoff) })
		bars = bars[i:]
	}

	c.logger.Info(ctx, "Fetched Yahoo history", map[string]interface{}{"ticker": ticker, "rows": len(bars)})
	return bars, nil
}

// translateChart converts the first chart result into adjusted daily rows, oldest first.
func translateChart(ticker string, chart *chartResponse) []domain.HistoricalBar {
	result := chart.Chart.Result[0]
	offset := result.Meta.GMTOffset
	tradingDay := func(ts int64) time.Time {
		return domain.TruncateToDay(time.Unix(ts+offset, 0))
	}

	dividends := make(map[time.Time]float64)
	for _, d := range result.Events.Dividends {
		dividends[tradingDay(d.Date)] += d.Amount
	}
	splits := make(map[time.Time]float64)
	for _, s := range result.Events.Splits {
		if s.Denominator == 0 {
			continue
		}
		ratio, _ := decimal.NewFromFloat(s.Numerator).Div(decimal.NewFromFloat(s.Denominator)).Round(6).Float64()
		splits[tradingDay(s.Date)] = ratio
	}

	if len(result.Indicators.Quote) == 0 {
		return []domain.HistoricalBar{}
	}
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]domain.HistoricalBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && cl == 0 {
			continue // skip null bars (holidays etc.)
		}
		factor := 1.0
		if a := at(adj, i); a > 0 && cl > 0 {
			factor = a / cl
		}
		date := tradingDay(ts)
		bars = append(bars, domain.HistoricalBar{
			Ticker: ticker,
			PriceBar: domain.PriceBar{
				Date:  date,
				Open:  o * factor,
				High:  h * factor,
				Low:   l * factor,
				Close: cl * factor,
			},
			Volume:     at(quote.Volume, i),
			Dividend:   dividends[date],
			SplitRatio: splits[date],
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
