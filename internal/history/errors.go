package history

import "codeberg.org/mutker/pgmon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Argument Errors
	ErrInvalidArgument = errors.ErrInvalidArgument

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")

	// Storage Errors
	ErrStorageUnavailable = errors.ErrorCode("history_storage_unavailable")
	ErrStorageCorrupt     = errors.ErrorCode("history_storage_corrupt")
	ErrStorageInit        = errors.ErrInitFailed
	ErrStorageClose       = errors.ErrShutdownFailed

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
