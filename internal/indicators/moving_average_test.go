package indicators

import (
	"errors"
	"math"
	"testing"

	"stockDataServer/internal/domain"
)

func TestRollingMean(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name       string
		values     []float64
		window     int
		minPeriods int
		expected   []float64
	}{
		{
			name:       "Relaxed warm-up",
			values:     []float64{1, 2, 3, 4, 5},
			window:     3,
			minPeriods: 1,
			expected:   []float64{1, 1.5, 2, 3, 4},
		},
		{
			name:       "Full window required",
			values:     []float64{1, 2, 3, 4, 5},
			window:     3,
			minPeriods: 3,
			expected:   []float64{nan, nan, 2, 3, 4},
		},
		{
			name:       "Missing values are skipped",
			values:     []float64{1, nan, 3},
			window:     2,
			minPeriods: 1,
			expected:   []float64{1, 1, 3},
		},
		{
			name:       "Window of only missing values",
			values:     []float64{nan, nan, 4},
			window:     2,
			minPeriods: 1,
			expected:   []float64{nan, nan, 4},
		},
		{
			name:       "Window of one",
			values:     []float64{7, 8, 9},
			window:     1,
			minPeriods: 0,
			expected:   []float64{7, 8, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RollingMean(tt.values, tt.window, tt.minPeriods)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d values, got %d", len(tt.expected), len(got))
			}
			for i := range got {
				if math.IsNaN(tt.expected[i]) {
					if !math.IsNaN(got[i]) {
						t.Errorf("Position %d: expected NaN, got %f", i, got[i])
					}
					continue
				}
				if math.Abs(got[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("Position %d: expected %f, got %f", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestRollingMean_InvalidWindow(t *testing.T) {
	if _, err := RollingMean([]float64{1}, 0, 1); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}

func TestSMASeries(t *testing.T) {
	got, err := SMASeries([]float64{100, 102, 101, 103, 104}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("Expected NaN warm-up, got %v", got[:2])
	}
	if math.Abs(got[4]-102.666667) > 0.0001 {
		t.Errorf("Expected 102.666667, got %f", got[4])
	}
}
