package loadgen

import (
	"time"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/pgstat"
)

// Config carries the target connection plus the workload knobs.
type Config struct {
	DB          pgstat.Config
	Connections int
	Duration    time.Duration
}

// Validate checks the workload knobs and the underlying connection
// settings.
func (c Config) Validate() error {
	errFactory := errors.New()

	if err := c.DB.Validate(); err != nil {
		return errFactory.Wrap(ErrInvalidConfig, err)
	}
	if c.Connections < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "connections must be at least 1")
	}
	if c.Duration <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "duration must be positive")
	}

	return nil
}
