package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/loadgen"
	"codeberg.org/mutker/pgmon/internal/logger"
	"codeberg.org/mutker/pgmon/internal/pgstat"
)

const (
	defaultConnections = 20
	defaultDuration    = time.Minute
)

type cliOptions struct {
	cfg      loadgen.Config
	scenario loadgen.Scenario
	debug    bool
}

func main() {
	// A .env alongside the binary mirrors the connection settings the
	// monitor reads. Missing files are fine.
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Scenario progress is the tool's output, so verbose stays on.
	logger.Init(opts.debug, true, logger.IsService())

	generator, err := loadgen.NewGenerator(opts.cfg, logger.Default())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize load generator")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err = generator.Run(ctx, opts.scenario)
	cancel()
	if closeErr := generator.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Failed to close connection pool")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Load scenario failed")
		os.Exit(1)
	}
}

func parseArgs(args []string) (*cliOptions, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("pgmon-loadgen", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmon-loadgen [flags] <scenario>\n\nScenarios: %s\n\nFlags:\n%s",
			scenarioNames(), fs.FlagUsages())
	}

	host := fs.String("host", envOr("PGMON_HOST", "localhost"), "PostgreSQL host")
	port := fs.Int("port", envIntOr("PGMON_PORT", 5432), "PostgreSQL port")
	database := fs.String("database", envOr("PGMON_DATABASE", "postgres"), "Database name")
	user := fs.String("user", envOr("PGMON_USER", "postgres"), "Database user")
	password := fs.String("password", envOr("PGMON_PASSWORD", ""), "Database password")
	sslmode := fs.String("sslmode", envOr("PGMON_SSLMODE", "disable"), "Connection sslmode")
	connections := fs.Int("connections", defaultConnections, "Parallel sessions for the connections scenario")
	duration := fs.Duration("duration", defaultDuration, "How long timed scenarios run")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument,
			"expected exactly one scenario argument")
	}

	scenario, err := loadgen.ParseScenario(fs.Arg(0))
	if err != nil {
		return nil, err
	}

	return &cliOptions{
		cfg: loadgen.Config{
			DB: pgstat.Config{
				Host:     *host,
				Port:     *port,
				Database: *database,
				User:     *user,
				Password: *password,
				SSLMode:  *sslmode,
			},
			Connections: *connections,
			Duration:    *duration,
		},
		scenario: scenario,
		debug:    *debug,
	}, nil
}

func scenarioNames() string {
	names := make([]string, 0, len(loadgen.Scenarios()))
	for _, scenario := range loadgen.Scenarios() {
		names = append(names, string(scenario))
	}

	return strings.Join(names, ", ")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func envIntOr(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}

	return fallback
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
