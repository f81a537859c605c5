package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"stockDataServer/config"
	"stockDataServer/internal/adapters/logger"
	"stockDataServer/internal/bootstrap"
	"stockDataServer/internal/ports"
	"stockDataServer/internal/utils"
)

var ticker = flag.String("ticker", "", "ticker for every imported row (default: file name up to the first '_' or '.')")

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: import_prices [-ticker T] file.csv...")
		os.Exit(2)
	}
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	repo, err := bootstrap.OpenRepository(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	failed := false
	for _, path := range flag.Args() {
		n, err := importFile(ctx, repo, path, *ticker)
		if err != nil {
			appLogger.Error(ctx, err, "Import failed", map[string]interface{}{"file": path})
			failed = true
			continue
		}
		appLogger.Info(ctx, "Imported", map[string]interface{}{"file": path, "rows": n})
	}
	if failed {
		repo.Close()
		os.Exit(1)
	}
}

// importFile upserts the rows of one CSV file and returns how many were saved.
func importFile(ctx context.Context, repo ports.PriceRepository, path, ticker string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if ticker == "" {
		ticker = tickerFromFilename(path)
	}
	bars, err := utils.ReadHistoricalBarsFromCSV(f, ticker)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := repo.SaveBars(ctx, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

func tickerFromFilename(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexAny(name, "_."); i > 0 {
		name = name[:i]
	}
	return name
}
