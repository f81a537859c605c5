package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"stockDataServer/internal/analytics"
	"stockDataServer/internal/app"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"
)

// Upper bounds on a single request's work.
const (
	maxSimPeriods = 20000
	maxSimSteps   = 10000
	maxSimPoints  = 5_000_000 // periods * steps
	maxSimWorkers = 64
)

type parametersJSON struct {
	StartPrice float64 `json:"start_price"`
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
	Periods    int     `json:"periods"`
	Steps      int     `json:"steps"`
	StartDate  string  `json:"start_date"`
}

type simulateResponse struct {
	Parameters parametersJSON           `json:"parameters"`
	Seed       int64                    `json:"seed"`
	Prices     []priceJSON              `json:"prices"`
	RSI        []float64                `json:"rsi"`
	Summary    *analytics.SeriesSummary `json:"summary"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	req, err := parseSimulationQuery(r.URL.Query(), s.svc.SimulationDefaults())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.Simulate(r.Context(), req)
	if err != nil {
		s.writeServiceError(r.Context(), w, err, "simulation failed")
		return
	}

	out := simulateResponse{
		Parameters: parametersJSON{
			StartPrice: result.Params.StartPrice,
			Drift:      result.Params.Drift,
			Volatility: result.Params.Volatility,
			Periods:    result.Params.PeriodCount,
			Steps:      result.Params.IntradayStepCount,
			StartDate:  result.Params.StartDate.Format(domain.DateLayout),
		},
		Seed:    result.Seed,
		Prices:  make([]priceJSON, len(result.Bars)),
		RSI:     result.RSI,
		Summary: result.Summary,
	}
	for i, b := range result.Bars {
		out.Prices[i] = priceJSON{
			Date:  b.Date.Format(domain.DateLayout),
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// parseSimulationQuery overlays query parameters on the defaults.
// "start" takes precedence over "end" when both are given.
func parseSimulationQuery(q url.Values, defaults domain.SimulationParameters) (app.SimulationRequest, error) {
	req := app.SimulationRequest{Params: defaults}
	var err error

	floats := []struct {
		key string
		dst *float64
	}{
		{"start_price", &req.Params.StartPrice},
		{"drift", &req.Params.Drift},
		{"volatility", &req.Params.Volatility},
	}
	for _, f := range floats {
		if v := q.Get(f.key); v != "" {
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				return req, fmt.Errorf("invalid %s %q: %w", f.key, v, ports.ErrInvalidRequest)
			}
		}
	}

	ints := []struct {
		key string
		dst *int
		max int
	}{
		{"periods", &req.Params.PeriodCount, maxSimPeriods},
		{"steps", &req.Params.IntradayStepCount, maxSimSteps},
		{"workers", &req.Workers, maxSimWorkers},
	}
	for _, f := range ints {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid %s %q: %w", f.key, v, ports.ErrInvalidRequest)
		}
		if n > f.max {
			return req, fmt.Errorf("%s must not exceed %d: %w", f.key, f.max, ports.ErrInvalidRequest)
		}
		*f.dst = n
	}
	if req.Params.PeriodCount*req.Params.IntradayStepCount > maxSimPoints {
		return req, fmt.Errorf("periods * steps must not exceed %d: %w", maxSimPoints, ports.ErrInvalidRequest)
	}

	if v := q.Get("seed"); v != "" {
		if req.Seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return req, fmt.Errorf("invalid seed %q: %w", v, ports.ErrInvalidRequest)
		}
	}

	if v := q.Get("end"); v != "" {
		end, ok := parseDate(v)
		if !ok {
			return req, fmt.Errorf("invalid end date %q, expected YYYY-MM-DD: %w", v, ports.ErrInvalidRequest)
		}
		req.EndDate = end
	}
	if v := q.Get("start"); v != "" {
		start, ok := parseDate(v)
		if !ok {
			return req, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD: %w", v, ports.ErrInvalidRequest)
		}
		req.Params.StartDate = start
	}

	return req, nil
}
