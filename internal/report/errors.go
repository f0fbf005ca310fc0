package report

import "codeberg.org/mutker/pgmon/internal/errors"

// Error codes for report rendering
const (
	ErrRenderReport  = errors.ErrRenderReport
	ErrInvalidFormat = errors.ErrInvalidConfig
)
