package trend

import "codeberg.org/mutker/pgmon/internal/history"

// Direction of a metric relative to its baseline.
type Direction string

const (
	DirectionIncreased Direction = "increased"
	DirectionDecreased Direction = "decreased"
	DirectionStable    Direction = "stable"
)

// Trend relates a current value to a windowed baseline.
type Trend struct {
	BaselineAvg float64   `json:"baseline_avg"`
	DeltaPct    float64   `json:"delta_pct"`
	Direction   Direction `json:"direction"`
}

// Compare derives the percentage delta of current against the baseline
// average: (current - avg) / avg * 100. The second return is false when
// the baseline average is zero; no percentage is computable then and
// the returned Trend is the zero value. Pure computation, no I/O.
func Compare(current float64, agg history.AggregateResult) (Trend, bool) {
	if agg.Avg == 0 {
		return Trend{}, false
	}

	deltaPct := (current - agg.Avg) / agg.Avg * 100

	direction := DirectionStable
	switch {
	case deltaPct > 0:
		direction = DirectionIncreased
	case deltaPct < 0:
		direction = DirectionDecreased
	}

	return Trend{
		BaselineAvg: agg.Avg,
		DeltaPct:    deltaPct,
		Direction:   direction,
	}, true
}
