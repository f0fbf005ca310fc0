package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const transactionsQuery = `
SELECT COALESCE(sum(xact_commit), 0)::bigint AS commits,
       COALESCE(sum(xact_rollback), 0)::bigint AS rollbacks,
       EXTRACT(EPOCH FROM now() - pg_postmaster_start_time())::double precision AS uptime_seconds
FROM pg_stat_database`

const rollbackWarnRatio = 10.0

// transactionsPerSecond averages throughput over the whole uptime. Counters
// survive crashes but not stats resets, so a fresh reset reads low.
func transactionsPerSecond(commits, rollbacks int64, uptimeSeconds float64) float64 {
	if uptimeSeconds <= 0 {
		return 0
	}

	return float64(commits+rollbacks) / uptimeSeconds
}

func rollbackRatio(commits, rollbacks int64) float64 {
	total := commits + rollbacks
	if total == 0 {
		return 0
	}

	return float64(rollbacks) / float64(total) * 100
}

func (c *collector) collectTransactions(ctx context.Context, report *Report) error {
	stats := &TransactionStats{}
	if err := c.query(ctx, stats, transactionsQuery); err != nil {
		return err
	}
	stats.TPS = transactionsPerSecond(stats.Commits, stats.Rollbacks, stats.UptimeSeconds)
	stats.RollbackRatio = rollbackRatio(stats.Commits, stats.Rollbacks)
	report.Transactions = stats

	report.recordSample("performance", "tps", stats.TPS, history.Metadata{
		"commits":   stats.Commits,
		"rollbacks": stats.Rollbacks,
	})

	if stats.RollbackRatio > rollbackWarnRatio {
		report.recordAlert("transactions", history.SeverityWarning,
			fmt.Sprintf("Rollback ratio at %.1f%%", stats.RollbackRatio),
			history.Metadata{"rollback_ratio": stats.RollbackRatio})
	}

	return nil
}
