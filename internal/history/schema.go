package history

import (
	"database/sql"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS metrics_history (
	       id        INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp INTEGER NOT NULL,
	       category  TEXT NOT NULL CHECK (category <> ''),
	       name      TEXT NOT NULL CHECK (name <> ''),
	       value     REAL NOT NULL,
	       metadata  TEXT
	   );
	   CREATE INDEX IF NOT EXISTS idx_metrics_history_lookup
	       ON metrics_history (category, name, timestamp);
	   CREATE TABLE IF NOT EXISTS alerts_history (
	       id         INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp  INTEGER NOT NULL,
	       alert_type TEXT NOT NULL CHECK (alert_type <> ''),
	       severity   TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'critical')),
	       message    TEXT NOT NULL,
	       details    TEXT
	   );
	   CREATE INDEX IF NOT EXISTS idx_alerts_history_time
	       ON alerts_history (timestamp);`

	insertMetricSQL = `
    INSERT INTO metrics_history (timestamp, category, name, value, metadata)
    VALUES (?, ?, ?, ?, ?)`

	insertAlertSQL = `
    INSERT INTO alerts_history (timestamp, alert_type, severity, message, details)
    VALUES (?, ?, ?, ?, ?)`

	aggregateMetricSQL = `
    SELECT COUNT(value), AVG(value), MIN(value), MAX(value)
    FROM metrics_history
    WHERE category = ? AND name = ? AND timestamp >= ?`

	latestSamplesSQL = `
    SELECT m.timestamp, m.category, m.name, m.value, m.metadata
    FROM metrics_history m
    WHERE m.timestamp >= ?
      AND NOT EXISTS (
          SELECT 1 FROM metrics_history newer
          WHERE newer.category = m.category
            AND newer.name = m.name
            AND (newer.timestamp > m.timestamp
                 OR (newer.timestamp = m.timestamp AND newer.id > m.id))
      )
    ORDER BY m.category, m.name`

	purgeMetricsSQL = `DELETE FROM metrics_history WHERE timestamp < ?`

	purgeAlertsSQL = `DELETE FROM alerts_history WHERE timestamp < ?`

	recentAlertsSQL = `
    SELECT timestamp, alert_type, severity, message, details
    FROM alerts_history
    WHERE timestamp >= ?`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating history schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	// Record schema version
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("History schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
