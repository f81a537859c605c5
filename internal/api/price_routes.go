package api

import (
	"net/http"

	"stockDataServer/internal/domain"
)

type priceJSON struct {
	Date       string  `json:"date"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	Dividend   float64 `json:"dividend"`
	SplitRatio float64 `json:"split_ratio"`
}

type splitJSON struct {
	Date       string  `json:"date"`
	SplitRatio float64 `json:"split_ratio"`
}

type pricesResponse struct {
	Ticker string      `json:"ticker"`
	Source string      `json:"source"`
	Seed   int64       `json:"seed,omitempty"`
	Prices []priceJSON `json:"prices"`
	RSI    []float64   `json:"rsi"`
	Splits []splitJSON `json:"splits"`
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.svc.ListTickers(r.Context())
	if err != nil {
		s.writeServiceError(r.Context(), w, err, "failed to list tickers")
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tickers": tickers})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	ticker := domain.NormalizeTicker(r.URL.Query().Get("ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker query parameter is required")
		return
	}

	series, err := s.svc.GetPrices(r.Context(), ticker)
	if err != nil {
		s.writeServiceError(r.Context(), w, err, "failed to fetch prices")
		return
	}

	out := pricesResponse{
		Ticker: series.Ticker,
		Source: series.Source,
		Seed:   series.Seed,
		Prices: make([]priceJSON, len(series.Bars)),
		RSI:    series.RSI,
		Splits: make([]splitJSON, len(series.Splits)),
	}
	for i, b := range series.Bars {
		out.Prices[i] = priceJSON{
			Date:       b.Date.Format(domain.DateLayout),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			Dividend:   b.Dividend,
			SplitRatio: b.SplitRatio,
		}
	}
	for i, sp := range series.Splits {
		out.Splits[i] = splitJSON{Date: sp.Date.Format(domain.DateLayout), SplitRatio: sp.Ratio}
	}
	if out.RSI == nil {
		out.RSI = []float64{}
	}
	writeJSON(w, http.StatusOK, out)
}
