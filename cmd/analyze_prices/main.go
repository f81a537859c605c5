package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"stockDataServer/internal/analytics"
	"stockDataServer/internal/domain"
	"stockDataServer/internal/indicators"
	"stockDataServer/internal/utils"
)

var (
	dir        = flag.String("dir", "data", "directory holding price CSV files")
	prefix     = flag.String("prefix", "", "only analyze files whose name starts with this prefix")
	rsiPeriod  = flag.Int("rsi", indicators.DefaultRSIPeriod, "RSI lookback period")
	overbought = flag.Float64("overbought", 70, "RSI level flagged as overbought")
	oversold   = flag.Float64("oversold", 30, "RSI level flagged as oversold")
	monthly    = flag.Bool("monthly", false, "also print monthly returns per file")
)

// fileReport is the analysis of one CSV file.
type fileReport struct {
	File    string
	Summary *analytics.SeriesSummary
	LastRSI float64
	Signal  string // overbought, oversold or empty
}

func main() {
	flag.Parse()

	files, err := findPriceFiles(*dir, *prefix)
	if err != nil {
		log.Fatalf("Error finding price files: %v", err)
	}
	if len(files) == 0 {
		log.Println("No price files found. Run simulate or fetch_prices with -out first.")
		return
	}

	rsi := indicators.NewRSI(indicators.RSIConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: *rsiPeriod},
		Overbought:      *overbought,
		Oversold:        *oversold,
	})

	reports := make([]fileReport, 0, len(files))
	for _, file := range files {
		report, err := analyzeFile(file, rsi)
		if err != nil {
			log.Printf("Error analyzing %s: %v", file, err)
			continue
		}
		reports = append(reports, report)
	}

	printSummaryTable(os.Stdout, reports)
	if *monthly {
		for _, r := range reports {
			printMonthlyReturns(os.Stdout, r)
		}
	}
}

// findPriceFiles lists the CSV files in dir, sorted by name.
func findPriceFiles(dir, prefix string) ([]string, error) {
	var files []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".csv") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func analyzeFile(path string, rsi *indicators.RSI) (fileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileReport{}, err
	}
	defer f.Close()

	rows, err := utils.ReadHistoricalBarsFromCSV(f, strings.TrimSuffix(filepath.Base(path), ".csv"))
	if err != nil {
		return fileReport{}, err
	}
	bars := make([]domain.PriceBar, len(rows))
	for i, r := range rows {
		bars[i] = r.PriceBar
	}

	summary, err := analytics.Summarize(bars)
	if err != nil {
		return fileReport{}, err
	}
	report := fileReport{File: filepath.Base(path), Summary: summary}
	if len(bars) >= 2 {
		report.LastRSI, err = rsi.Calculate(context.Background(), bars)
		if err != nil {
			return fileReport{}, err
		}
		report.Signal = rsiSignal(rsi, report.LastRSI)
	}
	return report, nil
}

func rsiSignal(rsi *indicators.RSI, value float64) string {
	switch {
	case rsi.IsOverbought(value):
		return "overbought"
	case rsi.IsOversold(value):
		return "oversold"
	default:
		return ""
	}
}

func printSummaryTable(out io.Writer, reports []fileReport) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "File\tBars\tFirst\tLast\tReturn%\tMaxDD%\tMu\tSigma\tATR\tRSI\tSignal\t")
	for _, r := range reports {
		s := r.Summary
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.5f\t%.5f\t%.4f\t%.2f\t%s\t\n",
			r.File,
			s.Periods,
			s.FirstClose,
			s.LastClose,
			s.TotalReturn*100,
			s.MaxDrawdown*100,
			s.ImpliedDrift,
			s.StdDevLogReturn,
			s.AverageTrueRange,
			r.LastRSI,
			r.Signal,
		)
	}
	w.Flush()
}

func printMonthlyReturns(out io.Writer, r fileReport) {
	fmt.Fprintf(out, "\nFile: %s\n", r.File)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Month\tReturn%")
	for _, m := range r.Summary.GetMonthlyReturns() {
		fmt.Fprintf(w, "%s\t%.2f\n", m.Month.Format("2006-01"), m.Return*100)
	}
	w.Flush()
}
