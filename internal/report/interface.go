package report

import (
	"io"
	"time"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/history"
	"codeberg.org/mutker/pgmon/internal/pgstat"
	"codeberg.org/mutker/pgmon/internal/trend"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Renderer writes collection results, trend reports, and alert summaries
// to a stream.
type Renderer interface {
	Render(w io.Writer, report *pgstat.Report) error
	RenderTrends(w io.Writer, trends TrendReport) error
	RenderAlerts(w io.Writer, summary AlertSummary) error
}

// NewRenderer returns the renderer for an output format.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case FormatTable:
		return &tableRenderer{}, nil
	case FormatJSON:
		return &jsonRenderer{}, nil
	default:
		errFactory := errors.New()
		return nil, errFactory.WithData(ErrInvalidFormat, struct {
			Format string
		}{
			Format: format,
		})
	}
}

// TrendReport is the trend view over one lookback window.
type TrendReport struct {
	WindowHours float64     `json:"window_hours"`
	Trends      []TrendLine `json:"trends"`
}

// TrendLine relates the latest value of one tracked metric to its windowed
// baseline. Baseline is nil when the window holds no samples; Trend is nil
// when the baseline average is zero and no percentage is computable.
type TrendLine struct {
	Category string                   `json:"category"`
	Name     string                   `json:"name"`
	Current  float64                  `json:"current"`
	Baseline *history.AggregateResult `json:"baseline,omitempty"`
	Trend    *trend.Trend             `json:"trend,omitempty"`
}

// AlertSummary aggregates recent alerts by severity.
type AlertSummary struct {
	WindowHours float64         `json:"window_hours"`
	Total       int             `json:"total"`
	Critical    int             `json:"critical"`
	Warning     int             `json:"warning"`
	Info        int             `json:"info"`
	Recent      []history.Alert `json:"recent,omitempty"`
}

// recentAlertLimit caps how many alerts a summary carries verbatim.
const recentAlertLimit = 5

// Summarize folds alerts (most recent first, as RecentAlerts returns them)
// into severity counts, keeping the most recent critical alerts verbatim.
// When there are no criticals the warnings are kept instead.
func Summarize(window time.Duration, alerts []history.Alert) AlertSummary {
	summary := AlertSummary{
		WindowHours: window.Hours(),
		Total:       len(alerts),
	}
	for _, alert := range alerts {
		switch alert.Severity {
		case history.SeverityCritical:
			summary.Critical++
		case history.SeverityWarning:
			summary.Warning++
		case history.SeverityInfo:
			summary.Info++
		}
	}

	summary.Recent = pickRecent(alerts, history.SeverityCritical)
	if len(summary.Recent) == 0 {
		summary.Recent = pickRecent(alerts, history.SeverityWarning)
	}

	return summary
}

func pickRecent(alerts []history.Alert, severity history.Severity) []history.Alert {
	var recent []history.Alert
	for _, alert := range alerts {
		if alert.Severity != severity {
			continue
		}
		recent = append(recent, alert)
		if len(recent) == recentAlertLimit {
			break
		}
	}

	return recent
}
