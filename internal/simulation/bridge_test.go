package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockDataServer/internal/domain"
)

func TestGenerateIntradayPath_ZeroVolatilityIsGeometric(t *testing.T) {
	path, err := GenerateIntradayPath(100, 110, 5, 0, NewSeededSource(3))
	require.NoError(t, err)
	require.Len(t, path, 5)

	assert.Equal(t, 100.0, path[0])
	assert.Equal(t, 110.0, path[4])

	step := math.Log(110.0/100.0) / 4
	for i := 1; i < len(path); i++ {
		assert.Greater(t, path[i], path[i-1], "step %d", i)
		assert.InDelta(t, step, math.Log(path[i]/path[i-1]), 1e-12, "step %d", i)
	}
}

func TestGenerateIntradayPath_EndpointsPinned(t *testing.T) {
	rng := NewSeededSource(11)
	for i := 0; i < 200; i++ {
		open := 50 + float64(i)
		closePrice := open * math.Exp(0.05*math.Sin(float64(i)))
		path, err := GenerateIntradayPath(open, closePrice, 100, 0.3, rng)
		require.NoError(t, err)
		require.Len(t, path, 100)

		assert.Equal(t, open, path[0])
		assert.InEpsilon(t, closePrice, path[len(path)-1], 1e-9)
		for _, p := range path {
			assert.Greater(t, p, 0.0)
		}
	}
}

func TestGenerateIntradayPath_FewSteps(t *testing.T) {
	tests := []struct {
		name  string
		steps int
		want  []float64
	}{
		{name: "one step", steps: 1, want: []float64{100, 105}},
		{name: "two steps", steps: 2, want: []float64{100, 105}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := GenerateIntradayPath(100, 105, tt.steps, 0.2, NewSeededSource(1))
			require.NoError(t, err)
			assert.Equal(t, tt.want, path)
		})
	}
}

func TestGenerateIntradayPath_RandomShapeVaries(t *testing.T) {
	a, err := GenerateIntradayPath(100, 100, 50, 0.2, NewSeededSource(1))
	require.NoError(t, err)
	b, err := GenerateIntradayPath(100, 100, 50, 0.2, NewSeededSource(2))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	high, low := pathExtremes(a)
	assert.GreaterOrEqual(t, high, 100.0)
	assert.LessOrEqual(t, low, 100.0)
	assert.Greater(t, high, low)
}

func TestGenerateIntradayPath_InvalidParameters(t *testing.T) {
	tests := []struct {
		name       string
		open       float64
		close      float64
		steps      int
		volatility float64
	}{
		{name: "zero steps", open: 100, close: 101, steps: 0, volatility: 0.1},
		{name: "zero open", open: 0, close: 101, steps: 10, volatility: 0.1},
		{name: "negative close", open: 100, close: -1, steps: 10, volatility: 0.1},
		{name: "negative volatility", open: 100, close: 101, steps: 10, volatility: -0.2},
		{name: "NaN open", open: math.NaN(), close: 101, steps: 10, volatility: 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateIntradayPath(tt.open, tt.close, tt.steps, tt.volatility, NewSeededSource(1))
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}
}
