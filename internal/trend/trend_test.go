package trend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/pgmon/internal/history"
	"codeberg.org/mutker/pgmon/internal/trend"
)

func TestCompareDirections(t *testing.T) {
	baseline := history.AggregateResult{Avg: 100, Min: 90, Max: 110, SampleCount: 10}

	tests := []struct {
		name      string
		current   float64
		deltaPct  float64
		direction trend.Direction
	}{
		{"increase", 110, 10.0, trend.DirectionIncreased},
		{"decrease", 90, -10.0, trend.DirectionDecreased},
		{"stable", 100, 0.0, trend.DirectionStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := trend.Compare(tt.current, baseline)
			require.True(t, ok, "Expected a computable trend")

			assert.InDelta(t, tt.deltaPct, result.DeltaPct, 1e-9, "Expected DeltaPct %v", tt.deltaPct)
			assert.Equal(t, tt.direction, result.Direction, "Expected direction %s", tt.direction)
			assert.InDelta(t, baseline.Avg, result.BaselineAvg, 1e-9, "Expected baseline average carried over")
		})
	}
}

func TestCompareZeroBaseline(t *testing.T) {
	baseline := history.AggregateResult{Avg: 0, Min: 0, Max: 0, SampleCount: 5}

	for _, current := range []float64{-50, 0, 1, 12345.6} {
		result, ok := trend.Compare(current, baseline)
		assert.False(t, ok, "Expected no computable trend for zero baseline")
		assert.Zero(t, result, "Expected zero-value trend for zero baseline")
	}
}

func TestCompareThroughputDrop(t *testing.T) {
	baseline := history.AggregateResult{Avg: 1700, Min: 1600, Max: 1800, SampleCount: 3}

	result, ok := trend.Compare(1600, baseline)
	require.True(t, ok, "Expected a computable trend")

	assert.InDelta(t, -5.88, result.DeltaPct, 0.01, "Expected roughly -5.88% delta")
	assert.Equal(t, trend.DirectionDecreased, result.Direction, "Expected decreased direction")
}
