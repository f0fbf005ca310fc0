package loadgen

import "codeberg.org/mutker/pgmon/internal/errors"

// Error codes for load generation, aliased from the shared set
var (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidScenario = errors.ErrInvalidArgument
	ErrScenarioFailed  = errors.ErrOperationFailed
)
