package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"stockDataServer/config"
	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/app"
	"stockDataServer/internal/bootstrap"
	"stockDataServer/internal/utils"
)

var (
	tickers = flag.String("tickers", "", "comma-separated tickers to fetch (default: every cached ticker)")
	outDir  = flag.String("out", "", "also export each ticker's cached history as CSV into this directory")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Repository and Providers
	repo, err := bootstrap.OpenRepository(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	providers, err := bootstrap.Providers(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data providers: %v", err)
	}

	svc, err := app.NewPriceService(cfg, appLogger, repo, providers...)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize price service: %v", err)
	}

	// 4. Fetch
	list := splitTickers(*tickers)
	if len(list) == 0 {
		if err := svc.RefreshAll(ctx); err != nil {
			appLogger.Error(ctx, err, "Refresh finished with errors")
		}
		if list, err = svc.ListTickers(ctx); err != nil {
			log.Fatalf("Error listing tickers: %v", err)
		}
	} else {
		for _, t := range list {
			n, err := svc.RefreshTicker(ctx, t)
			if err != nil {
				appLogger.Error(ctx, err, "Error fetching prices", map[string]interface{}{"ticker": t})
				continue
			}
			appLogger.Info(ctx, "Fetched prices", map[string]interface{}{"ticker": t, "rows": n})
		}
	}

	// 5. Export
	if *outDir == "" {
		return
	}
	for _, t := range list {
		series, err := svc.GetPrices(ctx, t)
		if err != nil {
			appLogger.Error(ctx, err, "Error reading prices", map[string]interface{}{"ticker": t})
			continue
		}
		filename := filepath.Join(*outDir, fmt.Sprintf("%s_1d.csv", series.Ticker))
		if err := writeFile(filename, series); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"ticker": t})
			continue
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "rows": len(series.Bars)})
	}
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func writeFile(filename string, series *app.PriceSeries) error {
	f, err := utils.CreateFile(filename)
	if err != nil {
		return err
	}
	if err := utils.WriteHistoricalBarsToCSV(f, series.Bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
