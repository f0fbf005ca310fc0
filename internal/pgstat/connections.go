package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const connectionsQuery = `
SELECT (SELECT setting::int FROM pg_settings WHERE name = 'max_connections') AS max_connections,
       count(*)::int AS total,
       (count(*) FILTER (WHERE state = 'active'))::int AS active,
       (count(*) FILTER (WHERE state = 'idle'))::int AS idle,
       (count(*) FILTER (WHERE state = 'idle in transaction'))::int AS idle_in_transaction
FROM pg_stat_activity`

const (
	connectionsWarnPct     = 80.0
	connectionsCriticalPct = 90.0
)

// connectionSeverity grades pool usage; ok is false below the warning line.
func connectionSeverity(percentUsed float64) (history.Severity, bool) {
	switch {
	case percentUsed > connectionsCriticalPct:
		return history.SeverityCritical, true
	case percentUsed > connectionsWarnPct:
		return history.SeverityWarning, true
	default:
		return "", false
	}
}

func (c *collector) collectConnections(ctx context.Context, report *Report) error {
	stats := &ConnectionStats{}
	if err := c.query(ctx, stats, connectionsQuery); err != nil {
		return err
	}
	if stats.MaxConnections > 0 {
		stats.PercentUsed = float64(stats.Total) / float64(stats.MaxConnections) * 100
	}
	report.Connections = stats

	report.recordSample("connections", "percent_used", stats.PercentUsed, history.Metadata{
		"total":           stats.Total,
		"max_connections": stats.MaxConnections,
	})

	if severity, ok := connectionSeverity(stats.PercentUsed); ok {
		report.recordAlert("connections", severity,
			fmt.Sprintf("Connection pool at %.1f%% of max_connections (%d of %d)",
				stats.PercentUsed, stats.Total, stats.MaxConnections),
			history.Metadata{"percent_used": stats.PercentUsed})
	}

	return nil
}
