package pgstat

import "codeberg.org/mutker/pgmon/internal/errors"

// Error codes for PostgreSQL collection
const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrConnectDatabase = errors.ErrConnectDatabase
	ErrQueryDatabase   = errors.ErrQueryDatabase
)
