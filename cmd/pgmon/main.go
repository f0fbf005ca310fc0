package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"codeberg.org/mutker/pgmon/internal/config"
	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/history"
	"codeberg.org/mutker/pgmon/internal/logger"
	"codeberg.org/mutker/pgmon/internal/pgstat"
	"codeberg.org/mutker/pgmon/internal/pid"
	"codeberg.org/mutker/pgmon/internal/report"
	"codeberg.org/mutker/pgmon/internal/trend"
)

// alertWindow is the lookback for the --show-alerts summary.
const alertWindow = 24 * time.Hour

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.SetLogLevel(logLevel())
	logger.Debug().Msg("Config loaded")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err := run(ctx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("pgmon failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	store, err := history.NewService(history.Config{
		DBPath:  cfg.HistoryDB,
		Enabled: !cfg.NoHistory,
	}, logger.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.PurgeHistory {
		return purgeHistory(ctx, store)
	}

	renderer, err := report.NewRenderer(cfg.Output)
	if err != nil {
		return err
	}

	// Trend and alert reports read from the history store only; no
	// server connection is needed.
	if cfg.ShowTrends || cfg.ShowAlerts {
		return showReports(ctx, store, renderer)
	}

	collector, err := pgstat.NewCollector(collectorConfig(), logger.Default())
	if err != nil {
		return err
	}
	defer collector.Close()

	if cfg.Watch > 0 {
		return watch(ctx, collector, store, renderer)
	}

	return cycle(ctx, collector, store, renderer)
}

// cycle runs one collection pass: collect, persist, render. Samples are
// recorded before trends are computed so the fresh value participates
// in its own baseline.
func cycle(ctx context.Context, collector pgstat.Collector, store history.Store, renderer report.Renderer) error {
	rep, err := collector.Collect(ctx, selectedChecks())
	if err != nil {
		return err
	}

	persist(ctx, store, rep)
	trends := cycleTrends(ctx, store, rep)

	if err := renderer.Render(os.Stdout, rep); err != nil {
		return err
	}
	if len(trends.Trends) > 0 {
		return renderer.RenderTrends(os.Stdout, trends)
	}

	return nil
}

// cycleTrends relates this cycle's samples to their windowed baselines.
// Series without a baseline are left out; with history disabled that is
// all of them and the trend section disappears.
func cycleTrends(ctx context.Context, store history.Store, rep *pgstat.Report) report.TrendReport {
	lookback := cfg.TrendLookback()
	trends := report.TrendReport{WindowHours: lookback.Hours()}

	for _, sample := range rep.Samples {
		agg, err := store.Aggregate(ctx, sample.Category, sample.Name, lookback)
		if err != nil {
			logger.Warn().Err(err).
				Str("category", sample.Category).
				Str("name", sample.Name).
				Msg("Failed to compute trend baseline")
			continue
		}
		if agg == nil {
			continue
		}

		line := report.TrendLine{
			Category: sample.Category,
			Name:     sample.Name,
			Current:  sample.Value,
			Baseline: agg,
		}
		if t, ok := trend.Compare(sample.Value, *agg); ok {
			line.Trend = &t
		}
		trends.Trends = append(trends.Trends, line)
	}

	return trends
}

// watch repeats cycles until the context is cancelled. The first cycle
// still fails fast so a bad connection or password surfaces
// immediately; later failures are logged and the loop keeps going.
func watch(ctx context.Context, collector pgstat.Collector, store history.Store, renderer report.Renderer) error {
	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	logger.Info().Int("interval_seconds", cfg.Watch).Msg("Watch mode started")

	if err := cycle(ctx, collector, store, renderer); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.Watch) * time.Second)
	defer ticker.Stop()

	errFactory := errors.New()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Watch mode stopped")
			return nil
		case <-ticker.C:
			if err := cycle(ctx, collector, store, renderer); err != nil {
				logger.ErrorWithCode(errFactory.Wrap(errors.ErrMonitorCycle, err)).
					Msg("Monitoring cycle failed")
			}
		}
	}
}

// persist records the cycle's samples and alerts. History failures are
// logged and do not fail the cycle; the diagnostics already succeeded.
func persist(ctx context.Context, store history.Store, rep *pgstat.Report) {
	for _, sample := range rep.Samples {
		if err := store.RecordMetric(ctx, sample); err != nil {
			logger.Warn().Err(err).
				Str("category", sample.Category).
				Str("name", sample.Name).
				Msg("Failed to record metric sample")
		}
	}
	for _, alert := range rep.Alerts {
		if err := store.RecordAlert(ctx, alert); err != nil {
			logger.Warn().Err(err).Str("type", alert.Type).Msg("Failed to record alert")
		}
	}
}

func showReports(ctx context.Context, store history.Store, renderer report.Renderer) error {
	if cfg.ShowTrends {
		if err := showTrends(ctx, store, renderer); err != nil {
			return err
		}
	}
	if cfg.ShowAlerts {
		if err := showAlerts(ctx, store, renderer); err != nil {
			return err
		}
	}

	return nil
}

// showTrends compares the latest sample of every tracked metric against
// its windowed baseline.
func showTrends(ctx context.Context, store history.Store, renderer report.Renderer) error {
	lookback := cfg.TrendLookback()

	samples, err := store.LatestSamples(ctx, lookback)
	if err != nil {
		return err
	}

	lines := make([]report.TrendLine, 0, len(samples))
	for _, sample := range samples {
		line := report.TrendLine{
			Category: sample.Category,
			Name:     sample.Name,
			Current:  sample.Value,
		}
		agg, err := store.Aggregate(ctx, sample.Category, sample.Name, lookback)
		if err != nil {
			return err
		}
		if agg != nil {
			line.Baseline = agg
			if t, ok := trend.Compare(sample.Value, *agg); ok {
				line.Trend = &t
			}
		}
		lines = append(lines, line)
	}

	return renderer.RenderTrends(os.Stdout, report.TrendReport{
		WindowHours: lookback.Hours(),
		Trends:      lines,
	})
}

func showAlerts(ctx context.Context, store history.Store, renderer report.Renderer) error {
	alerts, err := store.RecentAlerts(ctx, alertWindow, "")
	if err != nil {
		return err
	}

	return renderer.RenderAlerts(os.Stdout, report.Summarize(alertWindow, alerts))
}

func purgeHistory(ctx context.Context, store history.Store) error {
	age := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	samples, err := store.PurgeOlderThan(ctx, age)
	if err != nil {
		return err
	}
	alerts, err := store.PurgeAlertsOlderThan(ctx, age)
	if err != nil {
		return err
	}

	fmt.Printf("Purged %d samples and %d alerts older than %d days\n",
		samples, alerts, cfg.RetentionDays)

	return nil
}

// selectedChecks maps the check flags onto a selection. Running with no
// check flags at all means everything, matching --all.
func selectedChecks() pgstat.Checks {
	if cfg.All || !cfg.AnyCheckSelected() {
		return pgstat.AllChecks()
	}

	return pgstat.Checks{
		Connections:  cfg.Connections,
		Cache:        cfg.Cache,
		Checkpoints:  cfg.Checkpoints,
		Transactions: cfg.Transactions,
		Locks:        cfg.Locks,
		SlowQueries:  cfg.SlowQueries,
		Bloat:        cfg.Bloat,
		Vacuum:       cfg.Vacuum,
		Indexes:      cfg.Indexes,
		Sizes:        cfg.Sizes,
		WAL:          cfg.WALGrowth,
		Replication:  cfg.Replication,
	}
}

func collectorConfig() pgstat.Config {
	return pgstat.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Database:           cfg.Database,
		User:               cfg.User,
		Password:           cfg.Password,
		SSLMode:            cfg.SSLMode,
		LatencyThresholdMS: cfg.LatencyThreshold,
		BloatThresholdPct:  cfg.BloatThreshold,
	}
}

func logLevel() logger.LogLevel {
	switch {
	case cfg.Debug:
		return logger.DebugLevel
	case cfg.Verbose:
		return logger.InfoLevel
	}

	switch config.LogLevel(cfg.LogLevel) {
	case config.LogLevelDebug:
		return logger.DebugLevel
	case config.LogLevelWarning:
		return logger.WarnLevel
	case config.LogLevelError:
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
