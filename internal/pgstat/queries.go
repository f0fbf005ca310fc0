package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const (
	statementsExtensionQuery = `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_stat_statements') AS installed`

	slowStatementsQuery = `
SELECT left(query, 120) AS query,
       calls::bigint AS calls,
       mean_exec_time::double precision AS mean_time_ms,
       total_exec_time::double precision AS total_time_ms,
       max_exec_time::double precision AS max_time_ms
FROM pg_stat_statements
WHERE mean_exec_time > ?
ORDER BY mean_exec_time DESC
LIMIT 20`

	runningQueriesQuery = `
SELECT pid,
       COALESCE(state, '') AS state,
       COALESCE(left(query, 120), '') AS query,
       EXTRACT(EPOCH FROM now() - query_start)::double precision AS running_seconds
FROM pg_stat_activity
WHERE state <> 'idle'
  AND pid <> pg_backend_pid()
  AND query_start IS NOT NULL
  AND now() - query_start > make_interval(secs => ?)
ORDER BY running_seconds DESC
LIMIT 20`
)

// Fallback thresholds when pg_stat_statements is absent and only in-flight
// query runtimes are visible.
const (
	runningWarnSeconds     = 5.0
	runningCriticalSeconds = 10.0
)

func runtimeSeverity(seconds float64) history.Severity {
	if seconds > runningCriticalSeconds {
		return history.SeverityCritical
	}

	return history.SeverityWarning
}

func (c *collector) collectSlowQueries(ctx context.Context, report *Report) error {
	var installed bool
	if err := c.query(ctx, &installed, statementsExtensionQuery); err != nil {
		return err
	}

	slow := &SlowQueryReport{}
	if installed {
		slow.Source = SourceStatements
		threshold := float64(c.cfg.LatencyThresholdMS)
		if err := c.query(ctx, &slow.Statements, slowStatementsQuery, threshold); err != nil {
			return err
		}
		if n := len(slow.Statements); n > 0 {
			report.recordAlert("slow_queries", history.SeverityWarning,
				fmt.Sprintf("%d statement(s) averaging above %dms", n, c.cfg.LatencyThresholdMS),
				history.Metadata{"count": n, "threshold_ms": c.cfg.LatencyThresholdMS})
		}
	} else {
		slow.Source = SourceActivity
		if err := c.query(ctx, &slow.Running, runningQueriesQuery, runningWarnSeconds); err != nil {
			return err
		}
		for _, running := range slow.Running {
			report.recordAlert("slow_queries", runtimeSeverity(running.RunningSeconds),
				fmt.Sprintf("Query running for %.1fs (pid %d)", running.RunningSeconds, running.PID),
				history.Metadata{"pid": running.PID, "running_seconds": running.RunningSeconds})
		}
	}
	report.SlowQueries = slow

	return nil
}
