package pgstat

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/pgmon/internal/history"
)

const vacuumQuery = `
SELECT schemaname AS schema_name,
       relname AS table_name,
       last_vacuum,
       last_autovacuum,
       last_analyze,
       last_autoanalyze,
       n_live_tup::bigint AS live_tuples,
       n_dead_tup::bigint AS dead_tuples
FROM pg_stat_user_tables
WHERE n_live_tup + n_dead_tup > 0
ORDER BY n_dead_tup DESC
LIMIT 20`

const (
	vacuumStaleAfter = 7 * 24 * time.Hour
	vacuumWarnScore  = 50.0

	vacuumWeightVacuum  = 0.4
	vacuumWeightAnalyze = 0.4
	vacuumWeightDead    = 0.2
)

// vacuumScore grades one table 0-100: full marks for a fresh vacuum and
// analyze with no dead tuples, zero once both are a week stale. A negative
// duration means the operation never ran.
func vacuumScore(sinceVacuum, sinceAnalyze time.Duration, deadRatio float64) float64 {
	return vacuumWeightVacuum*freshness(sinceVacuum) +
		vacuumWeightAnalyze*freshness(sinceAnalyze) +
		vacuumWeightDead*(100-clampRatio(deadRatio))
}

func freshness(since time.Duration) float64 {
	if since < 0 || since >= vacuumStaleAfter {
		return 0
	}

	return 100 * (1 - float64(since)/float64(vacuumStaleAfter))
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 100:
		return 100
	default:
		return ratio
	}
}

// sinceLatest returns the age of the most recent of two optional timestamps,
// or -1 when neither is set.
func sinceLatest(now time.Time, a, b *time.Time) time.Duration {
	latest := latestTime(a, b)
	if latest == nil {
		return -1
	}

	return now.Sub(*latest)
}

func latestTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	default:
		return b
	}
}

func (c *collector) collectVacuum(ctx context.Context, report *Report) error {
	var tables []TableVacuum
	if err := c.query(ctx, &tables, vacuumQuery); err != nil {
		return err
	}

	now := time.Now()
	for i := range tables {
		table := &tables[i]

		deadRatio := 0.0
		if total := table.LiveTuples + table.DeadTuples; total > 0 {
			deadRatio = float64(table.DeadTuples) / float64(total) * 100
		}

		table.Score = vacuumScore(
			sinceLatest(now, table.LastVacuum, table.LastAutovacuum),
			sinceLatest(now, table.LastAnalyze, table.LastAutoanalyze),
			deadRatio,
		)

		// Tables with no dead tuples are skipped: an untouched table is
		// not a vacuum problem no matter how stale its timestamps are.
		if table.Score < vacuumWarnScore && table.DeadTuples > 0 {
			report.recordAlert("vacuum", history.SeverityWarning,
				fmt.Sprintf("Table %s.%s vacuum health at %.0f/100", table.Schema, table.Table, table.Score),
				history.Metadata{
					"schema": table.Schema,
					"table":  table.Table,
					"score":  table.Score,
				})
		}
	}
	report.Vacuum = tables

	return nil
}
