package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const (
	indexUsageQuery = `
SELECT schemaname AS schema_name,
       relname AS table_name,
       indexrelname AS index_name,
       idx_scan::bigint AS scans,
       (pg_relation_size(indexrelid) / 1048576.0)::double precision AS size_mb
FROM pg_stat_user_indexes
ORDER BY idx_scan ASC, pg_relation_size(indexrelid) DESC
LIMIT 20`

	seqScanQuery = `
SELECT schemaname AS schema_name,
       relname AS table_name,
       seq_scan::bigint AS seq_scans,
       COALESCE(idx_scan, 0)::bigint AS idx_scans,
       n_live_tup::bigint AS row_count
FROM pg_stat_user_tables
WHERE seq_scan > COALESCE(idx_scan, 0)
  AND n_live_tup > 1000
ORDER BY seq_scan DESC
LIMIT 10`
)

func (c *collector) collectIndexes(ctx context.Context, report *Report) error {
	indexes := &IndexReport{}
	if err := c.query(ctx, &indexes.Indexes, indexUsageQuery); err != nil {
		return err
	}
	if err := c.query(ctx, &indexes.SeqScanHeavy, seqScanQuery); err != nil {
		return err
	}
	report.Indexes = indexes

	unused := 0
	for _, index := range indexes.Indexes {
		if index.Scans == 0 {
			unused++
		}
	}
	if unused > 0 {
		report.recordAlert("indexes", history.SeverityInfo,
			fmt.Sprintf("%d index(es) never scanned since the last stats reset", unused),
			history.Metadata{"unused": unused})
	}

	return nil
}
