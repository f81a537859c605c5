package simulation

import (
	"fmt"
	"time"

	"stockDataServer/internal/domain"
)

// BusinessDays returns n Monday-to-Friday dates at or after start, ascending.
// Dates are UTC midnight. Holidays are not modeled.
func BusinessDays(start time.Time, n int) ([]time.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: business day count must be at least 1, got %d", domain.ErrInvalidParameter, n)
	}
	days := make([]time.Time, 0, n)
	for d := domain.TruncateToDay(start); len(days) < n; d = d.AddDate(0, 0, 1) {
		if isBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days, nil
}

// BusinessDaysEnding returns n Monday-to-Friday dates at or before end, ascending.
func BusinessDaysEnding(end time.Time, n int) ([]time.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: business day count must be at least 1, got %d", domain.ErrInvalidParameter, n)
	}
	days := make([]time.Time, n)
	i := n - 1
	for d := domain.TruncateToDay(end); i >= 0; d = d.AddDate(0, 0, -1) {
		if isBusinessDay(d) {
			days[i] = d
			i--
		}
	}
	return days, nil
}

func isBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
