package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.20},
		{"deepest trough wins", []float64{100, 90, 120, 60, 110}, 0.50},
		{"too short", []float64{100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.values), 1e-9)
		})
	}
}

func TestSharpeRatio(t *testing.T) {
	assert.Nil(t, SharpeRatio([]float64{0.01}, 0))
	assert.Nil(t, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0), "zero variance")

	sharpe := SharpeRatio([]float64{0.01, -0.005, 0.02, 0.003}, 0.02)
	require.NotNil(t, sharpe)
	assert.Greater(t, *sharpe, 0.0)
}

func TestSummarize(t *testing.T) {
	perf := Summarize([]float64{10000, 10500, 9500, 11000}, 0.02)

	assert.InDelta(t, 10.0, perf.TotalReturnPct, 1e-9)
	// Peak 10500 down to 9500 is a 9.52% drawdown.
	assert.InDelta(t, 9.5238, perf.MaxDrawdownPct, 0.001)
	assert.InDelta(t, 0.0, perf.CurrentDrawdown, 1e-9, "latest value is the new peak")
	assert.Equal(t, 4, perf.Days)
	assert.Greater(t, perf.AnnualizedVolPct, 0.0)
	require.NotNil(t, perf.SharpeRatio)
}

func TestSummarize_ShortSeries(t *testing.T) {
	perf := Summarize([]float64{10000}, 0.02)
	assert.Zero(t, perf.TotalReturnPct)
	assert.Nil(t, perf.SharpeRatio)
	assert.Equal(t, 1, perf.Days)
}

func TestReturns(t *testing.T) {
	returns := Returns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}
