package pgstat

import (
	"context"

	"codeberg.org/mutker/pgmon/internal/history"
)

const (
	databaseSizeQuery = `
SELECT current_database() AS database_name,
       (pg_database_size(current_database()) / 1048576.0)::double precision AS database_size_mb`

	tableSizeQuery = `
SELECT schemaname AS schema_name,
       relname AS table_name,
       (pg_total_relation_size(relid) / 1048576.0)::double precision AS total_size_mb,
       (pg_relation_size(relid) / 1048576.0)::double precision AS table_size_mb,
       ((pg_total_relation_size(relid) - pg_relation_size(relid)) / 1048576.0)::double precision AS index_size_mb
FROM pg_stat_user_tables
ORDER BY pg_total_relation_size(relid) DESC
LIMIT 10`
)

type databaseSizeRow struct {
	DatabaseName   string  `bun:"database_name"`
	DatabaseSizeMB float64 `bun:"database_size_mb"`
}

func (c *collector) collectSizes(ctx context.Context, report *Report) error {
	var database databaseSizeRow
	if err := c.query(ctx, &database, databaseSizeQuery); err != nil {
		return err
	}

	sizes := &SizeReport{
		DatabaseName:   database.DatabaseName,
		DatabaseSizeMB: database.DatabaseSizeMB,
	}
	if err := c.query(ctx, &sizes.Tables, tableSizeQuery); err != nil {
		return err
	}
	report.Sizes = sizes

	report.recordSample("database", "size_mb", sizes.DatabaseSizeMB, history.Metadata{
		"database": sizes.DatabaseName,
	})
	for _, table := range sizes.Tables {
		report.recordSample("disk_usage", table.Table, table.TotalSizeMB, history.Metadata{
			"schema": table.Schema,
		})
	}

	return nil
}
