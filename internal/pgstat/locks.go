package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const locksQuery = `
SELECT blocked.pid AS blocked_pid,
       COALESCE(left(blocked.query, 120), '') AS blocked_query,
       COALESCE(EXTRACT(EPOCH FROM now() - blocked.query_start), 0)::double precision AS blocked_seconds,
       blocking.pid AS blocking_pid,
       COALESCE(left(blocking.query, 120), '') AS blocking_query
FROM pg_stat_activity blocked
JOIN LATERAL unnest(pg_blocking_pids(blocked.pid)) AS blocker(pid) ON true
JOIN pg_stat_activity blocking ON blocking.pid = blocker.pid
ORDER BY blocked_seconds DESC`

func (c *collector) collectLocks(ctx context.Context, report *Report) error {
	var locks []BlockedLock
	if err := c.query(ctx, &locks, locksQuery); err != nil {
		return err
	}
	report.Locks = locks

	if len(locks) > 0 {
		report.recordAlert("locks", history.SeverityWarning,
			fmt.Sprintf("%d session(s) blocked waiting on locks", len(locks)),
			history.Metadata{"blocked": len(locks)})
	}

	return nil
}
