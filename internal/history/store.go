package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/logger"
)

type store struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
}

func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageUnavailable, err)
	}

	// WAL keeps readers from blocking the writer; the busy timeout
	// arbitrates access when a second process holds the file.
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageUnavailable, err)
	}

	// All access is serialized in-process; one connection is enough and
	// keeps SQLite's own locking simple.
	db.SetMaxOpenConns(1)

	// Probe the file before touching the schema so an unreadable
	// database reports as corrupt rather than a schema failure.
	var tableCount int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&tableCount); err != nil {
		db.Close()
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("History store initialized")

	return &store{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (s *store) RecordMetric(ctx context.Context, sample Sample) error {
	errFactory := errors.New()

	if sample.Category == "" {
		return errFactory.WithMessage(ErrInvalidArgument, "sample category must not be empty")
	}
	if sample.Name == "" {
		return errFactory.WithMessage(ErrInvalidArgument, "sample name must not be empty")
	}

	metadata, err := marshalMetadata(sample.Metadata)
	if err != nil {
		return err
	}

	timestamp := sample.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, insertMetricSQL,
		timestamp.Unix(), sample.Category, sample.Name, sample.Value, metadata); err != nil {
		return errFactory.Wrap(storageErrCode(err), err)
	}

	return nil
}

func (s *store) Aggregate(ctx context.Context, category, name string, lookback time.Duration) (*AggregateResult, error) {
	errFactory := errors.New()

	if category == "" || name == "" {
		return nil, errFactory.WithMessage(ErrInvalidArgument, "category and name must not be empty")
	}
	if lookback < 0 {
		return nil, errFactory.WithMessage(ErrInvalidArgument, "lookback must not be negative")
	}

	cutoff := time.Now().Add(-lookback).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		count         int64
		avg, min, max sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, aggregateMetricSQL, category, name, cutoff).
		Scan(&count, &avg, &min, &max)
	if err != nil {
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}

	// No samples in the window is a normal outcome, not an error.
	if count == 0 {
		return nil, nil
	}

	return &AggregateResult{
		Avg:         avg.Float64,
		Min:         min.Float64,
		Max:         max.Float64,
		SampleCount: count,
	}, nil
}

func (s *store) LatestSamples(ctx context.Context, window time.Duration) ([]Sample, error) {
	errFactory := errors.New()

	if window < 0 {
		return nil, errFactory.WithMessage(ErrInvalidArgument, "window must not be negative")
	}

	cutoff := time.Now().Add(-window).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, latestSamplesSQL, cutoff)
	if err != nil {
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			timestamp      int64
			category, name string
			value          float64
			metadata       sql.NullString
		)
		if err := rows.Scan(&timestamp, &category, &name, &value, &metadata); err != nil {
			return nil, errFactory.Wrap(storageErrCode(err), err)
		}

		sample := Sample{
			Timestamp: time.Unix(timestamp, 0),
			Category:  category,
			Name:      name,
			Value:     value,
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &sample.Metadata); err != nil {
				return nil, errFactory.Wrap(ErrStorageCorrupt, err)
			}
		}

		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}

	return samples, nil
}

func (s *store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return s.purge(ctx, purgeMetricsSQL, age)
}

func (s *store) RecordAlert(ctx context.Context, alert Alert) error {
	errFactory := errors.New()

	if alert.Type == "" {
		return errFactory.WithMessage(ErrInvalidArgument, "alert type must not be empty")
	}
	if !alert.Severity.IsValid() {
		return errFactory.WithData(ErrInvalidArgument, struct {
			Severity string
		}{
			Severity: string(alert.Severity),
		})
	}

	details, err := marshalMetadata(alert.Details)
	if err != nil {
		return err
	}

	timestamp := alert.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, insertAlertSQL,
		timestamp.Unix(), alert.Type, string(alert.Severity), alert.Message, details); err != nil {
		return errFactory.Wrap(storageErrCode(err), err)
	}

	return nil
}

func (s *store) RecentAlerts(ctx context.Context, window time.Duration, minSeverity Severity) ([]Alert, error) {
	errFactory := errors.New()

	if window < 0 {
		return nil, errFactory.WithMessage(ErrInvalidArgument, "window must not be negative")
	}
	if minSeverity != "" && !minSeverity.IsValid() {
		return nil, errFactory.WithData(ErrInvalidArgument, struct {
			Severity string
		}{
			Severity: string(minSeverity),
		})
	}

	cutoff := time.Now().Add(-window).Unix()

	query := recentAlertsSQL
	args := []any{cutoff}
	if minSeverity != "" {
		levels := severitiesAtLeast(minSeverity)
		query += " AND severity IN (?" + strings.Repeat(", ?", len(levels)-1) + ")"
		args = append(args, levels...)
	}
	query += " ORDER BY timestamp DESC, id DESC"

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var (
			timestamp                    int64
			alertType, severity, message string
			details                      sql.NullString
		)
		if err := rows.Scan(&timestamp, &alertType, &severity, &message, &details); err != nil {
			return nil, errFactory.Wrap(storageErrCode(err), err)
		}

		alert := Alert{
			Timestamp: time.Unix(timestamp, 0),
			Type:      alertType,
			Severity:  Severity(severity),
			Message:   message,
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &alert.Details); err != nil {
				return nil, errFactory.Wrap(ErrStorageCorrupt, err)
			}
		}

		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(storageErrCode(err), err)
	}

	return alerts, nil
}

func (s *store) PurgeAlertsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return s.purge(ctx, purgeAlertsSQL, age)
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Debug().Msg("History store closed")

	return nil
}

func (s *store) purge(ctx context.Context, query string, age time.Duration) (int64, error) {
	errFactory := errors.New()

	if age < 0 {
		return 0, errFactory.WithMessage(ErrInvalidArgument, "age must not be negative")
	}

	cutoff := time.Now().Add(-age).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errFactory.Wrap(storageErrCode(err), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageUnavailable, err)
	}

	return deleted, nil
}

// storageErrCode classifies a storage failure: a readable file with
// unreadable contents is corruption, anything else is unavailability.
func storageErrCode(err error) errors.ErrorCode {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return ErrStorageCorrupt
		}
	}

	return ErrStorageUnavailable
}

// marshalMetadata serializes metadata for storage, rejecting non-scalar
// values so application shape never leaks into the schema.
func marshalMetadata(m Metadata) (any, error) {
	errFactory := errors.New()

	if len(m) == 0 {
		return nil, nil
	}

	for key, value := range m {
		switch value.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return nil, errFactory.WithData(ErrInvalidArgument, struct {
				Key    string
				Reason string
			}{
				Key:    key,
				Reason: "metadata values must be scalar",
			})
		}
	}

	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidArgument, err)
	}

	return string(encoded), nil
}

func severitiesAtLeast(min Severity) []any {
	all := []Severity{SeverityInfo, SeverityWarning, SeverityCritical}
	levels := make([]any, 0, len(all))
	for _, severity := range all {
		if severity.AtLeast(min) {
			levels = append(levels, string(severity))
		}
	}

	return levels
}
