package pgstat

import (
	"context"

	"codeberg.org/mutker/pgmon/internal/history"
)

const walQuery = `
SELECT pg_walfile_name(pg_current_wal_lsn()) AS current_wal_file,
       (pg_wal_lsn_diff(pg_current_wal_lsn(), '0/0') / 1048576.0)::double precision AS written_mb,
       (SELECT count(*) FROM pg_ls_waldir()) AS file_count,
       ((SELECT COALESCE(sum(size), 0) FROM pg_ls_waldir()) / 1048576.0)::double precision AS dir_size_mb`

func (c *collector) collectWAL(ctx context.Context, report *Report) error {
	status := &WALStatus{}
	if err := c.query(ctx, status, walQuery); err != nil {
		return err
	}
	report.WAL = status

	// Written volume is monotonic, so its delta against the windowed
	// average reads as a growth rate.
	report.recordSample("wal", "size_mb", status.WrittenMB, history.Metadata{
		"wal_file": status.CurrentWALFile,
	})

	return nil
}
