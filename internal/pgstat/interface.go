package pgstat

import (
	"context"
	"time"

	"codeberg.org/mutker/pgmon/internal/history"
)

// Collector runs diagnostic checks against a PostgreSQL server
type Collector interface {
	// Connectivity
	Ping(ctx context.Context) error
	Close() error

	// Diagnostics
	Collect(ctx context.Context, checks Checks) (*Report, error)
}

// Checks selects which diagnostics a Collect call runs. Server info is
// always collected; it doubles as the connectivity probe.
type Checks struct {
	Connections  bool
	Cache        bool
	Checkpoints  bool
	Transactions bool
	Locks        bool
	SlowQueries  bool
	Bloat        bool
	Vacuum       bool
	Indexes      bool
	Sizes        bool
	WAL          bool
	Replication  bool
}

// AllChecks returns a selection with every diagnostic enabled.
func AllChecks() Checks {
	return Checks{
		Connections:  true,
		Cache:        true,
		Checkpoints:  true,
		Transactions: true,
		Locks:        true,
		SlowQueries:  true,
		Bloat:        true,
		Vacuum:       true,
		Indexes:      true,
		Sizes:        true,
		WAL:          true,
		Replication:  true,
	}
}

// Any reports whether at least one diagnostic is selected.
func (c Checks) Any() bool {
	return c.Connections || c.Cache || c.Checkpoints || c.Transactions ||
		c.Locks || c.SlowQueries || c.Bloat || c.Vacuum || c.Indexes ||
		c.Sizes || c.WAL || c.Replication
}

// Report holds the outcome of one collection cycle. Check sections are nil
// (or empty) when the check was not selected or failed; failures are listed
// separately so one broken catalog view never hides the rest.
type Report struct {
	CollectedAt  time.Time         `json:"collected_at"`
	Server       *ServerInfo       `json:"server,omitempty"`
	Connections  *ConnectionStats  `json:"connections,omitempty"`
	Cache        *CacheStats       `json:"cache,omitempty"`
	Checkpoints  *CheckpointStats  `json:"checkpoints,omitempty"`
	Transactions *TransactionStats `json:"transactions,omitempty"`
	Locks        []BlockedLock     `json:"locks,omitempty"`
	SlowQueries  *SlowQueryReport  `json:"slow_queries,omitempty"`
	Bloat        []TableBloat      `json:"bloat,omitempty"`
	Vacuum       []TableVacuum     `json:"vacuum,omitempty"`
	Indexes      *IndexReport      `json:"indexes,omitempty"`
	Sizes        *SizeReport       `json:"sizes,omitempty"`
	WAL          *WALStatus        `json:"wal,omitempty"`
	Replication  *ReplicationState `json:"replication,omitempty"`
	Failures     []CheckFailure    `json:"failures,omitempty"`

	// Side effects for the history store
	Samples []history.Sample `json:"-"`
	Alerts  []history.Alert  `json:"-"`
}

// CheckFailure records a diagnostic that could not run.
type CheckFailure struct {
	Check string `json:"check"`
	Error string `json:"error"`
}

// ServerInfo describes the server end of the connection.
type ServerInfo struct {
	Version       string    `bun:"version" json:"version"`
	StartedAt     time.Time `bun:"started_at" json:"started_at"`
	UptimeSeconds float64   `bun:"uptime_seconds" json:"uptime_seconds"`
	Database      string    `bun:"database" json:"database"`
	User          string    `bun:"username" json:"user"`
	Deployment    string    `bun:"-" json:"deployment"`
}

// ConnectionStats summarizes pg_stat_activity against max_connections.
type ConnectionStats struct {
	MaxConnections    int     `bun:"max_connections" json:"max_connections"`
	Total             int     `bun:"total" json:"total"`
	Active            int     `bun:"active" json:"active"`
	Idle              int     `bun:"idle" json:"idle"`
	IdleInTransaction int     `bun:"idle_in_transaction" json:"idle_in_transaction"`
	PercentUsed       float64 `bun:"-" json:"percent_used"`
}

// CacheStats summarizes buffer cache efficiency across all databases.
type CacheStats struct {
	BlocksHit  int64   `bun:"blocks_hit" json:"blocks_hit"`
	BlocksRead int64   `bun:"blocks_read" json:"blocks_read"`
	HitRatio   float64 `bun:"-" json:"hit_ratio"`
}

// CheckpointStats summarizes checkpoint activity and buffer writes from
// pg_stat_bgwriter since the last stats reset.
type CheckpointStats struct {
	CheckpointsTimed     int64   `bun:"checkpoints_timed" json:"checkpoints_timed"`
	CheckpointsRequested int64   `bun:"checkpoints_req" json:"checkpoints_requested"`
	WriteTimeMS          float64 `bun:"write_time_ms" json:"write_time_ms"`
	SyncTimeMS           float64 `bun:"sync_time_ms" json:"sync_time_ms"`
	BuffersCheckpoint    int64   `bun:"buffers_checkpoint" json:"buffers_checkpoint"`
	BuffersClean         int64   `bun:"buffers_clean" json:"buffers_clean"`
	BuffersBackend       int64   `bun:"buffers_backend" json:"buffers_backend"`
	RequestedRatio       float64 `bun:"-" json:"requested_ratio"`
}

// TransactionStats summarizes commit and rollback counters since the last
// stats reset, with throughput derived from postmaster uptime.
type TransactionStats struct {
	Commits       int64   `bun:"commits" json:"commits"`
	Rollbacks     int64   `bun:"rollbacks" json:"rollbacks"`
	UptimeSeconds float64 `bun:"uptime_seconds" json:"uptime_seconds"`
	TPS           float64 `bun:"-" json:"tps"`
	RollbackRatio float64 `bun:"-" json:"rollback_ratio"`
}

// BlockedLock is one blocked/blocking session pair.
type BlockedLock struct {
	BlockedPID     int     `bun:"blocked_pid" json:"blocked_pid"`
	BlockedQuery   string  `bun:"blocked_query" json:"blocked_query"`
	BlockedSeconds float64 `bun:"blocked_seconds" json:"blocked_seconds"`
	BlockingPID    int     `bun:"blocking_pid" json:"blocking_pid"`
	BlockingQuery  string  `bun:"blocking_query" json:"blocking_query"`
}

// SlowQueryReport lists slow statements from pg_stat_statements when the
// extension is installed, falling back to currently running long queries
// from pg_stat_activity when it is not.
type SlowQueryReport struct {
	Source     string         `json:"source"`
	Statements []SlowQuery    `json:"statements,omitempty"`
	Running    []RunningQuery `json:"running,omitempty"`
}

// Sources reported by SlowQueryReport.
const (
	SourceStatements = "pg_stat_statements"
	SourceActivity   = "pg_stat_activity"
)

// SlowQuery is an aggregated statement above the latency threshold.
type SlowQuery struct {
	Query       string  `bun:"query" json:"query"`
	Calls       int64   `bun:"calls" json:"calls"`
	MeanTimeMS  float64 `bun:"mean_time_ms" json:"mean_time_ms"`
	TotalTimeMS float64 `bun:"total_time_ms" json:"total_time_ms"`
	MaxTimeMS   float64 `bun:"max_time_ms" json:"max_time_ms"`
}

// RunningQuery is an in-flight query that has been running for a while.
type RunningQuery struct {
	PID            int     `bun:"pid" json:"pid"`
	State          string  `bun:"state" json:"state"`
	Query          string  `bun:"query" json:"query"`
	RunningSeconds float64 `bun:"running_seconds" json:"running_seconds"`
}

// TableBloat reports the dead tuple share of one table.
type TableBloat struct {
	Schema     string  `bun:"schema_name" json:"schema"`
	Table      string  `bun:"table_name" json:"table"`
	LiveTuples int64   `bun:"live_tuples" json:"live_tuples"`
	DeadTuples int64   `bun:"dead_tuples" json:"dead_tuples"`
	DeadRatio  float64 `bun:"dead_ratio" json:"dead_ratio"`
}

// TableVacuum reports vacuum and analyze recency for one table, rolled into
// a 0-100 health score.
type TableVacuum struct {
	Schema          string     `bun:"schema_name" json:"schema"`
	Table           string     `bun:"table_name" json:"table"`
	LastVacuum      *time.Time `bun:"last_vacuum" json:"last_vacuum,omitempty"`
	LastAutovacuum  *time.Time `bun:"last_autovacuum" json:"last_autovacuum,omitempty"`
	LastAnalyze     *time.Time `bun:"last_analyze" json:"last_analyze,omitempty"`
	LastAutoanalyze *time.Time `bun:"last_autoanalyze" json:"last_autoanalyze,omitempty"`
	LiveTuples      int64      `bun:"live_tuples" json:"live_tuples"`
	DeadTuples      int64      `bun:"dead_tuples" json:"dead_tuples"`
	Score           float64    `bun:"-" json:"score"`
}

// IndexReport pairs low-value indexes with tables that scan sequentially
// despite their size.
type IndexReport struct {
	Indexes      []IndexUsage   `json:"indexes,omitempty"`
	SeqScanHeavy []SeqScanTable `json:"seq_scan_heavy,omitempty"`
}

// IndexUsage reports scan counts and size for one index.
type IndexUsage struct {
	Schema string  `bun:"schema_name" json:"schema"`
	Table  string  `bun:"table_name" json:"table"`
	Index  string  `bun:"index_name" json:"index"`
	Scans  int64   `bun:"scans" json:"scans"`
	SizeMB float64 `bun:"size_mb" json:"size_mb"`
}

// SeqScanTable is a table read sequentially more often than via indexes.
type SeqScanTable struct {
	Schema   string `bun:"schema_name" json:"schema"`
	Table    string `bun:"table_name" json:"table"`
	SeqScans int64  `bun:"seq_scans" json:"seq_scans"`
	IdxScans int64  `bun:"idx_scans" json:"idx_scans"`
	Rows     int64  `bun:"row_count" json:"rows"`
}

// SizeReport lists the database size and its largest tables.
type SizeReport struct {
	DatabaseName   string         `json:"database"`
	DatabaseSizeMB float64        `json:"database_size_mb"`
	Tables         []RelationSize `json:"tables,omitempty"`
}

// RelationSize breaks one table's footprint into heap and index parts.
type RelationSize struct {
	Schema      string  `bun:"schema_name" json:"schema"`
	Table       string  `bun:"table_name" json:"table"`
	TotalSizeMB float64 `bun:"total_size_mb" json:"total_size_mb"`
	TableSizeMB float64 `bun:"table_size_mb" json:"table_size_mb"`
	IndexSizeMB float64 `bun:"index_size_mb" json:"index_size_mb"`
}

// WALStatus reports write-ahead log volume: total megabytes written since
// cluster init and the segment files currently on disk.
type WALStatus struct {
	CurrentWALFile string  `bun:"current_wal_file" json:"current_wal_file"`
	WrittenMB      float64 `bun:"written_mb" json:"written_mb"`
	FileCount      int64   `bun:"file_count" json:"file_count"`
	DirSizeMB      float64 `bun:"dir_size_mb" json:"dir_size_mb"`
}

// ReplicationState reports streaming replication as seen from this server.
type ReplicationState struct {
	InRecovery bool            `json:"in_recovery"`
	Replicas   []ReplicaStatus `json:"replicas,omitempty"`
}

// ReplicaStatus is one attached standby and its replay lag.
type ReplicaStatus struct {
	ClientAddr string  `bun:"client_addr" json:"client_addr"`
	State      string  `bun:"state" json:"state"`
	SyncState  string  `bun:"sync_state" json:"sync_state"`
	LagBytes   int64   `bun:"lag_bytes" json:"lag_bytes"`
	LagMB      float64 `bun:"-" json:"lag_mb"`
}

func (r *Report) recordSample(category, name string, value float64, metadata history.Metadata) {
	r.Samples = append(r.Samples, history.Sample{
		Timestamp: r.CollectedAt,
		Category:  category,
		Name:      name,
		Value:     value,
		Metadata:  metadata,
	})
}

func (r *Report) recordAlert(alertType string, severity history.Severity, message string, details history.Metadata) {
	r.Alerts = append(r.Alerts, history.Alert{
		Timestamp: r.CollectedAt,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Details:   details,
	})
}
