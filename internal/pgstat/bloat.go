package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const bloatQuery = `
SELECT schemaname AS schema_name,
       relname AS table_name,
       n_live_tup::bigint AS live_tuples,
       n_dead_tup::bigint AS dead_tuples,
       (n_dead_tup * 100.0 / NULLIF(n_live_tup + n_dead_tup, 0))::double precision AS dead_ratio
FROM pg_stat_user_tables
WHERE n_dead_tup > 0
ORDER BY dead_ratio DESC
LIMIT 20`

func (c *collector) collectBloat(ctx context.Context, report *Report) error {
	var tables []TableBloat
	if err := c.query(ctx, &tables, bloatQuery); err != nil {
		return err
	}
	report.Bloat = tables

	for _, table := range tables {
		if table.DeadRatio <= c.cfg.BloatThresholdPct {
			continue
		}
		report.recordAlert("bloat", history.SeverityWarning,
			fmt.Sprintf("Table %s.%s at %.1f%% dead tuples", table.Schema, table.Table, table.DeadRatio),
			history.Metadata{
				"schema":     table.Schema,
				"table":      table.Table,
				"dead_ratio": table.DeadRatio,
			})
	}

	return nil
}
