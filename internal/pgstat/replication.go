package pgstat

import (
	"context"
	"fmt"

	"codeberg.org/mutker/pgmon/internal/history"
)

const (
	inRecoveryQuery = `SELECT pg_is_in_recovery() AS in_recovery`

	replicationQuery = `
SELECT COALESCE(client_addr::text, '') AS client_addr,
       COALESCE(state, '') AS state,
       COALESCE(sync_state, '') AS sync_state,
       COALESCE(pg_wal_lsn_diff(pg_current_wal_lsn(), replay_lsn), 0)::bigint AS lag_bytes
FROM pg_stat_replication`
)

const replicationLagWarnMB = 100.0

func lagMB(lagBytes int64) float64 {
	return float64(lagBytes) / (1024 * 1024)
}

// collectReplication reports attached standbys. On a standby itself only the
// recovery flag is reported; pg_current_wal_lsn is not callable in recovery.
func (c *collector) collectReplication(ctx context.Context, report *Report) error {
	state := &ReplicationState{}
	if err := c.query(ctx, &state.InRecovery, inRecoveryQuery); err != nil {
		return err
	}
	if state.InRecovery {
		report.Replication = state
		return nil
	}

	if err := c.query(ctx, &state.Replicas, replicationQuery); err != nil {
		return err
	}
	for i := range state.Replicas {
		replica := &state.Replicas[i]
		replica.LagMB = lagMB(replica.LagBytes)
		if replica.LagMB > replicationLagWarnMB {
			report.recordAlert("replication", history.SeverityWarning,
				fmt.Sprintf("Standby %s lagging %.0f MB behind", replica.ClientAddr, replica.LagMB),
				history.Metadata{
					"client_addr": replica.ClientAddr,
					"lag_mb":      replica.LagMB,
				})
		}
	}
	report.Replication = state

	return nil
}
