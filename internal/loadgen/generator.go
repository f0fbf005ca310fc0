package loadgen

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/logger"
)

const (
	applicationName = "pgmon-loadgen"
	dialTimeout     = 5 * time.Second

	seedOrders      = 20000
	seedEvents      = 40000
	customerBuckets = 500

	// sleepSeconds keeps one statement visibly running past the
	// monitor's long-running query thresholds.
	sleepSeconds = 6

	keepaliveInterval = 5 * time.Second
)

var setupStatements = []string{
	`CREATE TABLE IF NOT EXISTS pgmon_load_orders (
		id          bigserial PRIMARY KEY,
		customer_id integer NOT NULL,
		status      text NOT NULL DEFAULT 'new',
		total       numeric(12,2) NOT NULL DEFAULT 0,
		payload     text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS pgmon_load_events (
		id       bigserial PRIMARY KEY,
		order_id bigint NOT NULL,
		kind     text NOT NULL,
		body     text NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS pgmon_load_orders_customer_idx
		ON pgmon_load_orders (customer_id)`,
	// Never queried, so the index usage check has something to flag.
	`CREATE INDEX IF NOT EXISTS pgmon_load_orders_payload_idx
		ON pgmon_load_orders (payload)`,
	`CREATE INDEX IF NOT EXISTS pgmon_load_events_order_idx
		ON pgmon_load_events (order_id)`,
}

var cleanupStatements = []string{
	`DROP TABLE IF EXISTS pgmon_load_events`,
	`DROP TABLE IF EXISTS pgmon_load_orders`,
}

const countOrdersQuery = `SELECT count(*)::bigint FROM pgmon_load_orders`

const seedOrdersQuery = `
INSERT INTO pgmon_load_orders (customer_id, status, total, payload)
SELECT (s.i % ?) + 1,
       'new',
       ((s.i * 37) % 90000)::numeric / 100,
       repeat('x', 200)
FROM generate_series(1, ?) AS s(i)`

const seedEventsQuery = `
INSERT INTO pgmon_load_events (order_id, kind, body)
SELECT (s.i % ?) + 1,
       (ARRAY['created', 'paid', 'shipped'])[(s.i % 3) + 1],
       repeat('y', 80)
FROM generate_series(1, ?) AS s(i)`

const analyzeQuery = `ANALYZE pgmon_load_orders, pgmon_load_events`

const crossJoinQuery = `
SELECT count(*)
FROM (SELECT id FROM pgmon_load_orders ORDER BY id LIMIT 2000) a
CROSS JOIN (SELECT id FROM pgmon_load_events ORDER BY id LIMIT 2000) b
WHERE (a.id + b.id) % 7 = 0`

const sleepQuery = `SELECT pg_sleep(?)`

const lockRowQuery = `UPDATE pgmon_load_orders SET status = 'locked' WHERE id = 1`

const collideQuery = `UPDATE pgmon_load_orders SET status = 'contended' WHERE id = 1`

// Bounds how long the colliding session waits before PostgreSQL
// cancels it and the loop tries again.
const setLockTimeoutQuery = `SET statement_timeout = '2s'`

const keepaliveQuery = `SELECT 1`

const churnQuery = `
UPDATE pgmon_load_orders
SET status = CASE status WHEN 'new' THEN 'churned' ELSE 'new' END,
    total  = total + 1
WHERE customer_id = ?`

type generator struct {
	db     *bun.DB
	cfg    Config
	logger logger.Logger
}

// NewGenerator opens a connection pool sized for the widest scenario.
// The pool connects lazily; the first statement surfaces connection
// errors.
func NewGenerator(cfg Config, log logger.Logger) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DB.DSN()),
		pgdriver.WithApplicationName(applicationName),
		pgdriver.WithDialTimeout(dialTimeout),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Connections + 2)
	sqldb.SetMaxIdleConns(cfg.Connections + 2)
	db := bun.NewDB(sqldb, pgdialect.New())

	return &generator{
		db:     db,
		cfg:    cfg,
		logger: log,
	}, nil
}

func (g *generator) Run(ctx context.Context, scenario Scenario) error {
	start := time.Now()
	g.logger.Info().Str("scenario", string(scenario)).Msg("Starting load scenario")

	var err error
	switch scenario {
	case ScenarioSetup:
		err = g.setup(ctx)
	case ScenarioCleanup:
		err = g.cleanup(ctx)
	case ScenarioSlowQueries:
		err = g.timed(ctx, g.slowQueries)
	case ScenarioLocks:
		err = g.timed(ctx, g.locks)
	case ScenarioConnections:
		err = g.timed(ctx, g.connections)
	case ScenarioBloat:
		err = g.timed(ctx, g.bloat)
	default:
		errFactory := errors.New()
		return errFactory.WithMessage(ErrInvalidScenario,
			fmt.Sprintf("unknown scenario %q", scenario))
	}
	if err != nil {
		return err
	}

	g.logger.Info().
		Str("scenario", string(scenario)).
		Dur("elapsed", time.Since(start)).
		Msg("Load scenario finished")

	return nil
}

func (g *generator) Close() error {
	if err := g.db.Close(); err != nil {
		errFactory := errors.New()
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

// timed runs fn under a deadline of cfg.Duration. Scenario loops treat
// the closing window as a clean stop, not an error.
func (g *generator) timed(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Duration)
	defer cancel()

	return fn(ctx)
}

// setup is idempotent: tables and indexes use IF NOT EXISTS and rows
// are only seeded into an empty table.
func (g *generator) setup(ctx context.Context) error {
	errFactory := errors.New()

	for _, stmt := range setupStatements {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return errFactory.Wrap(ErrScenarioFailed, err)
		}
	}

	var count int64
	if err := g.db.NewRaw(countOrdersQuery).Scan(ctx, &count); err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	if count > 0 {
		g.logger.Info().Int64("orders", count).Msg("Seed rows already present, skipping seed")
		return nil
	}

	if _, err := g.db.ExecContext(ctx, seedOrdersQuery, customerBuckets, seedOrders); err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	if _, err := g.db.ExecContext(ctx, seedEventsQuery, seedOrders, seedEvents); err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	if _, err := g.db.ExecContext(ctx, analyzeQuery); err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	g.logger.Info().Int("orders", seedOrders).Int("events", seedEvents).Msg("Seeded load tables")

	return nil
}

func (g *generator) cleanup(ctx context.Context) error {
	errFactory := errors.New()

	for _, stmt := range cleanupStatements {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return errFactory.Wrap(ErrScenarioFailed, err)
		}
	}
	g.logger.Info().Msg("Dropped load tables")

	return nil
}

func (g *generator) slowQueries(ctx context.Context) error {
	errFactory := errors.New()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := g.db.ExecContext(ctx, crossJoinQuery); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errFactory.Wrap(ErrScenarioFailed, err)
		}
		if _, err := g.db.ExecContext(ctx, sleepQuery, sleepSeconds); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errFactory.Wrap(ErrScenarioFailed, err)
		}
	}
}

// locks opens a transaction that updates one row and parks on it, then
// lets a second session collide with the held lock over and over. Each
// collision sits in pg_stat_activity as a blocked session until the
// statement timeout cancels it.
func (g *generator) locks(ctx context.Context) error {
	errFactory := errors.New()

	holder, err := g.db.Conn(ctx)
	if err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	defer holder.Close()

	tx, err := holder.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	if _, err := tx.ExecContext(ctx, lockRowQuery); err != nil {
		_ = tx.Rollback()
		return errFactory.Wrap(ErrScenarioFailed, err)
	}

	waiter, err := g.db.Conn(ctx)
	if err != nil {
		_ = tx.Rollback()
		return errFactory.Wrap(ErrScenarioFailed, err)
	}
	defer waiter.Close()
	if _, err := waiter.ExecContext(ctx, setLockTimeoutQuery); err != nil {
		_ = tx.Rollback()
		return errFactory.Wrap(ErrScenarioFailed, err)
	}

	collisions := 0
	for ctx.Err() == nil {
		if _, err := waiter.ExecContext(ctx, collideQuery); err == nil {
			// Lock no longer held, nothing left to collide with.
			break
		}
		collisions++
	}
	g.logger.Info().Int("collisions", collisions).Msg("Lock contention window closed")

	// Rolling back releases the lock. When the window context already
	// expired the transaction was rolled back for us.
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}

	return nil
}

func (g *generator) connections(ctx context.Context) error {
	errFactory := errors.New()

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < g.cfg.Connections; i++ {
		group.Go(func() error {
			conn, err := g.db.Conn(groupCtx)
			if err != nil {
				return err
			}
			defer conn.Close()

			ticker := time.NewTicker(keepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					if _, err := conn.ExecContext(groupCtx, keepaliveQuery); err != nil {
						if groupCtx.Err() != nil {
							return nil
						}
						return err
					}
				}
			}
		})
	}
	g.logger.Info().Int("sessions", g.cfg.Connections).Msg("Holding sessions open")

	if err := group.Wait(); err != nil {
		return errFactory.Wrap(ErrScenarioFailed, err)
	}

	return nil
}

func (g *generator) bloat(ctx context.Context) error {
	errFactory := errors.New()

	updates := 0
	for bucket := 1; ; bucket = bucket%customerBuckets + 1 {
		select {
		case <-ctx.Done():
			g.logger.Info().Int("updates", updates).Msg("Update churn window closed")
			return nil
		default:
		}
		if _, err := g.db.ExecContext(ctx, churnQuery, bucket); err != nil {
			if ctx.Err() != nil {
				g.logger.Info().Int("updates", updates).Msg("Update churn window closed")
				return nil
			}
			return errFactory.Wrap(ErrScenarioFailed, err)
		}
		updates++
	}
}
