// Package loadgen drives synthetic workloads against a throwaway
// database so the monitor has something worth reporting on. Each
// scenario maps onto one of the diagnostic checks: slow queries, lock
// contention, connection pressure and table bloat.
package loadgen

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/mutker/pgmon/internal/errors"
)

// Generator runs one named scenario at a time against the configured
// database.
type Generator interface {
	// Run executes the scenario. Timed scenarios stop cleanly when
	// the configured duration elapses or ctx is cancelled.
	Run(ctx context.Context, scenario Scenario) error
	// Close releases the connection pool.
	Close() error
}

// Scenario names a workload shape.
type Scenario string

const (
	// ScenarioSetup creates the load tables, seeds them and builds
	// their indexes, including one that is never scanned on purpose.
	ScenarioSetup Scenario = "setup"
	// ScenarioSlowQueries alternates a cross join aggregate with a
	// pg_sleep call long enough to trip the running query thresholds.
	ScenarioSlowQueries Scenario = "slow-queries"
	// ScenarioLocks holds a row lock open and lets a second session
	// run into it until its statement timeout fires.
	ScenarioLocks Scenario = "locks"
	// ScenarioConnections keeps N idle sessions open for the duration.
	ScenarioConnections Scenario = "connections"
	// ScenarioBloat churns updates over the seed rows to pile up dead
	// tuples faster than autovacuum reclaims them.
	ScenarioBloat Scenario = "bloat"
	// ScenarioCleanup drops everything setup created.
	ScenarioCleanup Scenario = "cleanup"
)

// Scenarios lists every known scenario, setup first and cleanup last.
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioSetup,
		ScenarioSlowQueries,
		ScenarioLocks,
		ScenarioConnections,
		ScenarioBloat,
		ScenarioCleanup,
	}
}

// ParseScenario maps a command line argument onto a Scenario.
func ParseScenario(name string) (Scenario, error) {
	for _, scenario := range Scenarios() {
		if string(scenario) == name {
			return scenario, nil
		}
	}
	errFactory := errors.New()

	return "", errFactory.WithMessage(ErrInvalidScenario,
		fmt.Sprintf("unknown scenario %q, expected one of: %s", name, scenarioList()))
}

func scenarioList() string {
	names := make([]string, 0, len(Scenarios()))
	for _, scenario := range Scenarios() {
		names = append(names, string(scenario))
	}

	return strings.Join(names, ", ")
}
