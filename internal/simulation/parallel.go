package simulation

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"stockDataServer/internal/domain"
)

// closeStream is the sub-stream id reserved for the close series; day d uses stream d+1.
const closeStream = 0

// AssembleBarsParallel builds the same kind of bars as AssembleBars but computes the intraday
// paths on up to workers goroutines.
//
// The close series is drawn from DeriveSource(seed, 0) and day d's bridge from
// DeriveSource(seed, d+1), so the result depends only on seed and params, never on the worker
// count or scheduling. It does not reproduce AssembleBars for the same seed.
func AssembleBarsParallel(ctx context.Context, params domain.SimulationParameters, seed int64, calendar []time.Time, workers int) ([]domain.PriceBar, error) {
	closes, err := prepareCloses(params, DeriveSource(seed, closeStream), calendar)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	bars := make([]domain.PriceBar, params.PeriodCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for day := range bars {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bar, err := assembleDay(params, closes, day, calendar[day], DeriveSource(seed, uint64(day)+1))
			if err != nil {
				return err
			}
			bars[day] = bar
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bars, nil
}
