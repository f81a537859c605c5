package domain

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used for storage and the HTTP API.
const DateLayout = "2006-01-02"

// SyntheticTicker is the ticker served from the price simulator instead of the cache.
// "SYNTH-<seed>" selects a specific seed, e.g. "SYNTH-42".
const SyntheticTicker = "SYNTH"

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// IsSyntheticTicker reports whether the ticker refers to simulated data.
func IsSyntheticTicker(ticker string) bool {
	_, ok := ParseSyntheticTicker(ticker)
	return ok
}

// ParseSyntheticTicker returns the seed encoded in a synthetic ticker.
// A bare "SYNTH" yields seed 0, which callers treat as "pick a seed". An explicit
// "SYNTH-0" also yields 0; callers tell the two apart by the ticker.
func ParseSyntheticTicker(ticker string) (int64, bool) {
	t := NormalizeTicker(ticker)
	if t == SyntheticTicker {
		return 0, true
	}
	suffix, ok := strings.CutPrefix(t, SyntheticTicker+"-")
	if !ok || suffix == "" {
		return 0, false
	}
	seed, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return seed, true
}

// TruncateToDay returns t at UTC midnight of its calendar day.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
