package pgstat

import "context"

const checkpointQuery = `
SELECT checkpoints_timed,
       checkpoints_req,
       checkpoint_write_time AS write_time_ms,
       checkpoint_sync_time AS sync_time_ms,
       buffers_checkpoint,
       buffers_clean,
       buffers_backend
FROM pg_stat_bgwriter`

// requestedCheckpointRatio is the share of checkpoints forced by WAL
// volume instead of the schedule. A server with no checkpoints yet
// scores zero.
func requestedCheckpointRatio(timed, requested int64) float64 {
	total := timed + requested
	if total == 0 {
		return 0
	}

	return float64(requested) / float64(total) * 100
}

func (c *collector) collectCheckpoints(ctx context.Context, report *Report) error {
	stats := &CheckpointStats{}
	if err := c.query(ctx, stats, checkpointQuery); err != nil {
		return err
	}
	stats.RequestedRatio = requestedCheckpointRatio(stats.CheckpointsTimed, stats.CheckpointsRequested)
	report.Checkpoints = stats

	return nil
}
