package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/analytics"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/indicators"
	"stockDataServer/internal/ports"
	"stockDataServer/internal/simulation"
	"stockDataServer/internal/utils"
)

const smaPeriod = 20

var (
	defaults   = domain.DefaultSimulationParameters()
	startPrice = flag.Float64("start-price", defaults.StartPrice, "price of the first bar")
	drift      = flag.Float64("drift", defaults.Drift, "daily drift")
	volatility = flag.Float64("volatility", defaults.Volatility, "daily volatility")
	periods    = flag.Int("periods", defaults.PeriodCount, "number of daily bars")
	steps      = flag.Int("steps", defaults.IntradayStepCount, "points in each intraday path")
	seed       = flag.Int64("seed", 0, "random seed (0 picks one from the clock)")
	startDate  = flag.String("start", "", "first trading day, YYYY-MM-DD (default: periods business days ending at -end)")
	endDate    = flag.String("end", "2025-01-01", "last calendar day when -start is not set, YYYY-MM-DD")
	rsiPeriod  = flag.Int("rsi", indicators.DefaultRSIPeriod, "RSI lookback period")
	output     = flag.String("out", "data/synthetic_prices.csv", "output CSV path, '-' for stdout")
	logLevel   = flag.String("log-level", "INFO", "DEBUG, INFO, WARN or ERROR")
)

type options struct {
	params    domain.SimulationParameters
	seed      int64
	start     string
	end       string
	rsiPeriod int
}

func main() {
	flag.Parse()
	appLogger := logger.NewStdLogger(logger.ParseLevel(*logLevel))
	ctx := context.Background()

	opts := options{
		params: domain.SimulationParameters{
			StartPrice:        *startPrice,
			Drift:             *drift,
			Volatility:        *volatility,
			PeriodCount:       *periods,
			IntradayStepCount: *steps,
		},
		seed:      *seed,
		start:     *startDate,
		end:       *endDate,
		rsiPeriod: *rsiPeriod,
	}
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}

	var w io.Writer = os.Stdout
	if *output != "-" {
		f, err := utils.CreateFile(*output)
		if err != nil {
			log.Fatalf("Error creating %s: %v", *output, err)
		}
		defer f.Close()
		w = f
	}

	summary, err := run(ctx, appLogger, opts, w)
	if err != nil {
		appLogger.Error(ctx, err, "Simulation failed")
		log.Fatalf("Simulation failed: %v", err)
	}

	appLogger.Info(ctx, "Saved synthetic prices", map[string]interface{}{
		"out":          *output,
		"seed":         opts.seed,
		"bars":         summary.Periods,
		"total_return": fmt.Sprintf("%.4f", summary.TotalReturn),
		"max_drawdown": fmt.Sprintf("%.4f", summary.MaxDrawdown),
		"implied_mu":   fmt.Sprintf("%.6f", summary.ImpliedDrift),
		"sigma":        fmt.Sprintf("%.6f", summary.StdDevLogReturn),
		"last_rsi":     fmt.Sprintf("%.2f", summary.Indicators["RSI"]),
	})
}

// run generates the bars sequentially from a single seeded stream and writes them with
// their RSI and SMA columns.
func run(ctx context.Context, log ports.Logger, opts options, w io.Writer) (*analytics.SeriesSummary, error) {
	if err := opts.params.Validate(); err != nil {
		return nil, err
	}
	if opts.rsiPeriod < 1 {
		return nil, fmt.Errorf("%w: RSI period must be at least 1, got %d", domain.ErrInvalidParameter, opts.rsiPeriod)
	}

	var calendar []time.Time
	var err error
	if opts.start != "" {
		start, perr := time.Parse(domain.DateLayout, opts.start)
		if perr != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", opts.start, domain.ErrInvalidParameter)
		}
		calendar, err = simulation.BusinessDays(start, opts.params.PeriodCount)
	} else {
		end, perr := time.Parse(domain.DateLayout, opts.end)
		if perr != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", opts.end, domain.ErrInvalidParameter)
		}
		calendar, err = simulation.BusinessDaysEnding(end, opts.params.PeriodCount)
	}
	if err != nil {
		return nil, err
	}
	opts.params.StartDate = calendar[0]

	log.Debug(ctx, "Generating synthetic bars", map[string]interface{}{
		"seed": opts.seed, "periods": opts.params.PeriodCount, "start": calendar[0].Format(domain.DateLayout),
	})
	bars, err := simulation.AssembleBars(opts.params, simulation.NewSeededSource(opts.seed), calendar)
	if err != nil {
		return nil, err
	}

	rsiIndicator := indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: opts.rsiPeriod}})
	rsi, err := rsiIndicator.Series(bars)
	if err != nil {
		return nil, err
	}
	sma, err := indicators.SMASeries(domain.Closes(bars), smaPeriod)
	if err != nil {
		return nil, err
	}
	summary, err := analytics.Summarize(bars, rsiIndicator)
	if err != nil {
		return nil, err
	}

	if err := utils.WriteBarsToCSV(w, bars,
		utils.Column{Name: "rsi", Values: rsi},
		utils.Column{Name: fmt.Sprintf("sma%d", smaPeriod), Values: sma},
	); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return summary, nil
}
