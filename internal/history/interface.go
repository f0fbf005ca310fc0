package history

import (
	"context"
	"time"
)

// Store is the durable append log of metric samples and alert records.
// One handle is constructed per process and passed to every caller that
// needs it; all operations are synchronous and safe for concurrent use
// within the process.
type Store interface {
	// RecordMetric appends one immutable sample. A zero Timestamp is
	// replaced with the current time. Samples are never updated or
	// individually deleted.
	RecordMetric(ctx context.Context, sample Sample) error

	// Aggregate computes avg/min/max/count over samples of the given
	// category and name whose timestamp falls within the lookback
	// window ending now. A nil result with a nil error means no samples
	// matched; callers treat it as "no baseline available".
	Aggregate(ctx context.Context, category, name string, lookback time.Duration) (*AggregateResult, error)

	// LatestSamples returns the most recent sample of every distinct
	// (category, name) series recorded within the window ending now,
	// ordered by category then name.
	LatestSamples(ctx context.Context, window time.Duration) ([]Sample, error)

	// PurgeOlderThan deletes samples older than now minus age and
	// returns the number of rows removed.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// RecordAlert appends one immutable alert record. A zero Timestamp
	// is replaced with the current time.
	RecordAlert(ctx context.Context, alert Alert) error

	// RecentAlerts returns alerts within the window ending now, most
	// recent first. When minSeverity is non-empty, only alerts at or
	// above that severity are returned.
	RecentAlerts(ctx context.Context, window time.Duration, minSeverity Severity) ([]Alert, error)

	// PurgeAlertsOlderThan deletes alert records older than now minus
	// age and returns the number of rows removed.
	PurgeAlertsOlderThan(ctx context.Context, age time.Duration) (int64, error)

	Close() error
}

// Sample is one recorded metric observation.
type Sample struct {
	Timestamp time.Time
	Category  string
	Name      string
	Value     float64
	Metadata  Metadata
}

// Alert is one recorded alert.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Details   Metadata  `json:"details,omitempty"`
}

// AggregateResult summarizes the samples inside a lookback window.
type AggregateResult struct {
	Avg         float64 `json:"avg"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int64   `json:"sample_count"`
}

// Metadata is an opaque string-keyed map of scalar values attached to a
// sample or alert. It is serialized to JSON at the store boundary and
// never interpreted by the store.
type Metadata map[string]any

// Severity classifies an alert record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid returns whether the severity is one of the closed enum values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities for filtering: critical > warning > info.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min in severity order.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}
