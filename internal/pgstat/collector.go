package pgstat

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/logger"
)

const (
	applicationName = "pgmon"
	dialTimeout     = 5 * time.Second
)

type collector struct {
	db     *bun.DB
	cfg    Config
	logger logger.Logger
}

// NewCollector opens a connection pool against the configured server. The
// pool connects lazily; Ping or the first check surfaces connection errors.
func NewCollector(cfg Config, log logger.Logger) (Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN()),
		pgdriver.WithApplicationName(applicationName),
		pgdriver.WithDialTimeout(dialTimeout),
	)
	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())

	return &collector{
		db:     db,
		cfg:    cfg,
		logger: log,
	}, nil
}

func (c *collector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		errFactory := errors.New()
		return errFactory.Wrap(ErrConnectDatabase, err)
	}

	return nil
}

func (c *collector) Close() error {
	if err := c.db.Close(); err != nil {
		errFactory := errors.New()
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

// Collect runs the selected checks. Server info always runs first and doubles
// as the connectivity probe, so a dead server fails the whole call. The other
// checks degrade independently: a failure is logged, recorded in
// report.Failures, and the remaining checks still run.
func (c *collector) Collect(ctx context.Context, checks Checks) (*Report, error) {
	report := &Report{CollectedAt: time.Now()}

	server, err := c.collectServer(ctx)
	if err != nil {
		return nil, err
	}
	report.Server = server

	steps := []struct {
		name    string
		enabled bool
		run     func(context.Context, *Report) error
	}{
		{"connections", checks.Connections, c.collectConnections},
		{"cache", checks.Cache, c.collectCache},
		{"checkpoints", checks.Checkpoints, c.collectCheckpoints},
		{"transactions", checks.Transactions, c.collectTransactions},
		{"locks", checks.Locks, c.collectLocks},
		{"slow_queries", checks.SlowQueries, c.collectSlowQueries},
		{"bloat", checks.Bloat, c.collectBloat},
		{"vacuum", checks.Vacuum, c.collectVacuum},
		{"indexes", checks.Indexes, c.collectIndexes},
		{"sizes", checks.Sizes, c.collectSizes},
		{"wal", checks.WAL, c.collectWAL},
		{"replication", checks.Replication, c.collectReplication},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.run(ctx, report); err != nil {
			c.logger.Error().Err(err).Str("check", step.name).Msg("Diagnostic check failed")
			report.Failures = append(report.Failures, CheckFailure{
				Check: step.name,
				Error: err.Error(),
			})
		}
	}

	return report, nil
}

func (c *collector) query(ctx context.Context, dest any, query string, args ...any) error {
	if err := c.db.NewRaw(query, args...).Scan(ctx, dest); err != nil {
		errFactory := errors.New()
		return errFactory.Wrap(ErrQueryDatabase, err)
	}

	return nil
}
