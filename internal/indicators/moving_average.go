package indicators

import (
	"fmt"
	"math"

	"stockDataServer/internal/domain"
)

// RollingMean computes a trailing mean over window positions.
//
// NaN values are treated as missing: they are skipped in both the sum and the observation
// count. A position whose window holds fewer than minPeriods observations is NaN.
func RollingMean(values []float64, window, minPeriods int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: rolling window must be at least 1, got %d", domain.ErrInvalidParameter, window)
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		sum, count := 0.0, 0
		for _, v := range values[start : i+1] {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			count++
		}
		if count < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(count)
	}
	return out, nil
}

// SMASeries computes the simple moving average of closes over period.
// The first period-1 positions are NaN.
func SMASeries(closes []float64, period int) ([]float64, error) {
	return RollingMean(closes, period, period)
}
