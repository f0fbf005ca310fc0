package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const cacheQuery = `
SELECT COALESCE(sum(blks_hit), 0)::bigint AS blocks_hit,
       COALESCE(sum(blks_read), 0)::bigint AS blocks_read
FROM pg_stat_database`

const cacheWarnRatio = 90.0

// cacheHitRatio is the share of block reads served from shared buffers.
// Zero traffic scores zero so a cold server never alerts.
func cacheHitRatio(hit, read int64) float64 {
	total := hit + read
	if total == 0 {
		return 0
	}

	return float64(hit) / float64(total) * 100
}

func (c *collector) collectCache(ctx context.Context, report *Report) error {
	stats := &CacheStats{}
	if err := c.query(ctx, stats, cacheQuery); err != nil {
		return err
	}
	stats.HitRatio = cacheHitRatio(stats.BlocksHit, stats.BlocksRead)
	report.Cache = stats

	report.recordSample("cache", "hit_ratio", stats.HitRatio, nil)

	if total := stats.BlocksHit + stats.BlocksRead; total > 0 && stats.HitRatio < cacheWarnRatio {
		report.recordAlert("cache", history.SeverityWarning,
			fmt.Sprintf("Buffer cache hit ratio at %.1f%%", stats.HitRatio),
			history.Metadata{"hit_ratio": stats.HitRatio})
	}

	return nil
}
