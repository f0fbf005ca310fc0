package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/history"
	"codeberg.org/mutker/pgmon/internal/logger"
	"codeberg.org/mutker/pgmon/internal/trend"
)

func newTestStore(t *testing.T) (history.Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.NewStore(history.Config{DBPath: dbPath, Enabled: true}, logger.Default())
	require.NoError(t, err, "Failed to open store")
	t.Cleanup(func() { store.Close() })

	return store, dbPath
}

func recordAt(t *testing.T, store history.Store, ts time.Time, category, name string, value float64) {
	t.Helper()

	err := store.RecordMetric(context.Background(), history.Sample{
		Timestamp: ts,
		Category:  category,
		Name:      name,
		Value:     value,
	})
	require.NoError(t, err, "Failed to record sample")
}

func TestRecordAndAggregate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, value := range []float64{42.5, 40.0, 45.0} {
		err := store.RecordMetric(ctx, history.Sample{
			Category: "cache",
			Name:     "hit_ratio",
			Value:    value,
		})
		require.NoError(t, err)
	}

	agg, err := store.Aggregate(ctx, "cache", "hit_ratio", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg, "Expected a baseline after recording")

	assert.EqualValues(t, 3, agg.SampleCount, "Expected 3 samples")
	assert.InDelta(t, 42.5, agg.Avg, 1e-9, "Expected arithmetic mean")
	assert.InDelta(t, 40.0, agg.Min, 1e-9, "Expected true minimum")
	assert.InDelta(t, 45.0, agg.Max, 1e-9, "Expected true maximum")
	assert.GreaterOrEqual(t, agg.Max, agg.Min, "Expected max >= min")
}

func TestAggregateEmptyBaseline(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	agg, err := store.Aggregate(ctx, "cache", "hit_ratio", time.Hour)
	require.NoError(t, err, "Empty baseline is a success outcome")
	assert.Nil(t, agg, "Expected no baseline on a fresh store")

	recordAt(t, store, time.Now(), "cache", "hit_ratio", 99.0)

	agg, err = store.Aggregate(ctx, "cache", "miss_ratio", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, agg, "Expected no baseline for a never-recorded metric")
}

func TestAggregateWindowExclusion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	recordAt(t, store, time.Now().Add(-2*time.Hour), "connections", "percent_used", 75)

	agg, err := store.Aggregate(ctx, "connections", "percent_used", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, agg, "Expected sample outside the lookback window to be excluded")

	agg, err = store.Aggregate(ctx, "connections", "percent_used", 3*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.EqualValues(t, 1, agg.SampleCount, "Expected sample inside the wider window")
}

func TestAggregateSeparatesSeries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	recordAt(t, store, time.Now(), "cache", "hit_ratio", 95)
	recordAt(t, store, time.Now(), "connections", "hit_ratio", 10)
	recordAt(t, store, time.Now(), "cache", "miss_ratio", 5)

	agg, err := store.Aggregate(ctx, "cache", "hit_ratio", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.EqualValues(t, 1, agg.SampleCount, "Expected category and name to scope the series")
	assert.InDelta(t, 95, agg.Avg, 1e-9)
}

func TestLatestSamples(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	recordAt(t, store, now.Add(-30*time.Minute), "cache", "hit_ratio", 90)
	recordAt(t, store, now.Add(-5*time.Minute), "cache", "hit_ratio", 95)
	recordAt(t, store, now.Add(-10*time.Minute), "performance", "tps", 1600)
	recordAt(t, store, now.Add(-48*time.Hour), "database", "size_mb", 12)

	err := store.RecordMetric(ctx, history.Sample{
		Timestamp: now.Add(-time.Minute),
		Category:  "disk_usage",
		Name:      "orders",
		Value:     64,
		Metadata:  history.Metadata{"schema": "public"},
	})
	require.NoError(t, err)

	samples, err := store.LatestSamples(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, samples, 3, "Expected one sample per series inside the window")

	assert.Equal(t, "cache", samples[0].Category, "Expected category ordering")
	assert.InDelta(t, 95, samples[0].Value, 1e-9, "Expected the newest sample of the series")
	assert.Equal(t, "disk_usage", samples[1].Category)
	assert.Equal(t, "public", samples[1].Metadata["schema"], "Expected metadata round-trip")
	assert.Equal(t, "performance", samples[2].Category)
	assert.InDelta(t, 1600, samples[2].Value, 1e-9)
}

func TestLatestSamplesEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	samples, err := store.LatestSamples(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, samples, "Expected no samples on a fresh store")

	_, err = store.LatestSamples(context.Background(), -time.Hour)
	require.Error(t, err, "Expected negative window to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
}

func TestRecordMetricValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.RecordMetric(ctx, history.Sample{Name: "tps", Value: 1})
	require.Error(t, err, "Expected empty category to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	err = store.RecordMetric(ctx, history.Sample{Category: "perf", Value: 1})
	require.Error(t, err, "Expected empty name to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	err = store.RecordMetric(ctx, history.Sample{
		Category: "perf",
		Name:     "tps",
		Value:    1,
		Metadata: history.Metadata{"nested": map[string]string{"a": "b"}},
	})
	require.Error(t, err, "Expected non-scalar metadata to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	_, err = store.Aggregate(ctx, "perf", "tps", -time.Hour)
	require.Error(t, err, "Expected negative lookback to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	_, err = store.PurgeOlderThan(ctx, -time.Minute)
	require.Error(t, err, "Expected negative age to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
}

func TestPurgeOlderThan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	recordAt(t, store, now.Add(-48*time.Hour), "perf", "tps", 1500)
	recordAt(t, store, now.Add(-30*time.Hour), "perf", "tps", 1550)
	recordAt(t, store, now, "perf", "tps", 1600)

	deleted, err := store.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted, "Expected both old samples removed")

	agg, err := store.Aggregate(ctx, "perf", "tps", 72*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.EqualValues(t, 1, agg.SampleCount, "Expected only the recent sample to remain")

	deleted, err = store.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted, "Expected an immediate second purge to delete nothing")
}

func TestThroughputTrendScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	recordAt(t, store, now.Add(-2*time.Hour), "performance", "tps", 1700)
	recordAt(t, store, now.Add(-time.Hour), "performance", "tps", 1800)
	recordAt(t, store, now, "performance", "tps", 1600)

	agg, err := store.Aggregate(ctx, "performance", "tps", 3*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg)

	assert.InDelta(t, 1700, agg.Avg, 1e-9, "Expected average of the three samples")
	assert.InDelta(t, 1600, agg.Min, 1e-9)
	assert.InDelta(t, 1800, agg.Max, 1e-9)
	assert.EqualValues(t, 3, agg.SampleCount)

	result, ok := trend.Compare(1600, *agg)
	require.True(t, ok, "Expected a computable trend")
	assert.InDelta(t, -5.88, result.DeltaPct, 0.01, "Expected roughly -5.88% delta")
	assert.Equal(t, trend.DirectionDecreased, result.Direction)
}

func TestRecentAlertsOrderingAndWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	oldAlert := history.Alert{
		Timestamp: now.Add(-48 * time.Hour),
		Type:      "bloat",
		Severity:  history.SeverityWarning,
		Message:   "dead tuple ratio above threshold",
	}
	first := history.Alert{
		Timestamp: now.Add(-10 * time.Minute),
		Type:      "connections",
		Severity:  history.SeverityWarning,
		Message:   "pool above 80%",
	}
	second := history.Alert{
		Timestamp: now.Add(-5 * time.Minute),
		Type:      "connections",
		Severity:  history.SeverityCritical,
		Message:   "pool above 90%",
	}
	third := history.Alert{
		Timestamp: now.Add(-time.Minute),
		Type:      "cache",
		Severity:  history.SeverityInfo,
		Message:   "hit ratio recovered",
	}

	for _, alert := range []history.Alert{oldAlert, first, second, third} {
		require.NoError(t, store.RecordAlert(ctx, alert))
	}

	alerts, err := store.RecentAlerts(ctx, 24*time.Hour, "")
	require.NoError(t, err)
	require.Len(t, alerts, 3, "Expected the old alert outside the window")

	assert.Equal(t, "cache", alerts[0].Type, "Expected most recent first")
	assert.Equal(t, "connections", alerts[1].Type)
	assert.Equal(t, "pool above 90%", alerts[1].Message)
	assert.Equal(t, "pool above 80%", alerts[2].Message)
}

func TestRecentAlertsSeverityFilter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	severities := []history.Severity{
		history.SeverityInfo,
		history.SeverityWarning,
		history.SeverityCritical,
	}
	for i, severity := range severities {
		require.NoError(t, store.RecordAlert(ctx, history.Alert{
			Timestamp: now.Add(time.Duration(-i) * time.Minute),
			Type:      "replication",
			Severity:  severity,
			Message:   string(severity),
		}))
	}

	alerts, err := store.RecentAlerts(ctx, time.Hour, history.SeverityWarning)
	require.NoError(t, err)
	require.Len(t, alerts, 2, "Expected info alerts filtered out")
	for _, alert := range alerts {
		assert.True(t, alert.Severity.AtLeast(history.SeverityWarning),
			"Expected only warning and critical alerts")
	}

	alerts, err = store.RecentAlerts(ctx, time.Hour, history.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, history.SeverityCritical, alerts[0].Severity)

	_, err = store.RecentAlerts(ctx, time.Hour, history.Severity("fatal"))
	require.Error(t, err, "Expected unknown severity to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
}

func TestAlertDetailsRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.RecordAlert(ctx, history.Alert{
		Type:     "bloat",
		Severity: history.SeverityWarning,
		Message:  "table orders.lines above bloat threshold",
		Details: history.Metadata{
			"schema":     "public",
			"table":      "order_lines",
			"dead_ratio": 41.5,
			"vacuumed":   false,
		},
	})
	require.NoError(t, err)

	alerts, err := store.RecentAlerts(ctx, time.Hour, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	details := alerts[0].Details
	assert.Equal(t, "public", details["schema"])
	assert.Equal(t, "order_lines", details["table"])
	assert.InDelta(t, 41.5, details["dead_ratio"].(float64), 1e-9)
	assert.Equal(t, false, details["vacuumed"])
}

func TestRecordAlertValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.RecordAlert(ctx, history.Alert{
		Severity: history.SeverityInfo,
		Message:  "missing type",
	})
	require.Error(t, err, "Expected empty alert type to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	err = store.RecordAlert(ctx, history.Alert{
		Type:     "connections",
		Severity: history.Severity("panic"),
		Message:  "bad severity",
	})
	require.Error(t, err, "Expected unknown severity to be rejected")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
}

func TestPurgeAlertsOlderThan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.RecordAlert(ctx, history.Alert{
		Timestamp: now.Add(-72 * time.Hour),
		Type:      "vacuum",
		Severity:  history.SeverityInfo,
		Message:   "old",
	}))
	require.NoError(t, store.RecordAlert(ctx, history.Alert{
		Timestamp: now,
		Type:      "vacuum",
		Severity:  history.SeverityInfo,
		Message:   "new",
	}))

	deleted, err := store.PurgeAlertsOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = store.PurgeAlertsOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted, "Expected idempotent purge")

	alerts, err := store.RecentAlerts(ctx, 96*time.Hour, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "new", alerts[0].Message)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := history.Config{DBPath: dbPath, Enabled: true}
	ctx := context.Background()

	store, err := history.NewStore(cfg, logger.Default())
	require.NoError(t, err)

	recordAt(t, store, time.Now(), "database", "size_mb", 512)
	require.NoError(t, store.Close())

	reopened, err := history.NewStore(cfg, logger.Default())
	require.NoError(t, err, "Failed to reopen store")
	defer reopened.Close()

	agg, err := reopened.Aggregate(ctx, "database", "size_mb", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, agg, "Expected data recorded before restart to be readable after")
	assert.InDelta(t, 512, agg.Avg, 1e-9)
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := history.Config{DBPath: dbPath, Enabled: true}
	ctx := context.Background()

	store, err := history.NewStore(cfg, logger.Default())
	require.NoError(t, err)
	recordAt(t, store, time.Now(), "perf", "tps", 1000)
	require.NoError(t, store.Close())

	// Simulate a database left behind by an older release
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_versions SET version = 999")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := history.NewStore(cfg, logger.Default())
	require.NoError(t, err, "Expected version mismatch to recreate the schema")
	defer reopened.Close()

	agg, err := reopened.Aggregate(ctx, "perf", "tps", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, agg, "Expected a fresh schema after migration")

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(dbPath), "backups"))
	require.NoError(t, err, "Expected a backup directory")
	assert.NotEmpty(t, backups, "Expected the old database backed up before recreation")
}

func TestCorruptDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("this is not a sqlite database at all"), 0o600))

	_, err := history.NewStore(history.Config{DBPath: dbPath, Enabled: true}, logger.Default())
	require.Error(t, err, "Expected an unreadable file to fail")
	assert.Equal(t, history.ErrStorageCorrupt, errors.CodeOf(err), "Expected corruption to be distinguishable")
}

func TestOperationsAfterClose(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Close())

	err := store.RecordMetric(ctx, history.Sample{Category: "perf", Name: "tps", Value: 1})
	require.Error(t, err, "Expected writes after close to fail")
	assert.Equal(t, history.ErrStorageUnavailable, errors.CodeOf(err))
}

func TestInvalidDBPath(t *testing.T) {
	_, err := history.NewStore(history.Config{Enabled: true}, logger.Default())
	require.Error(t, err)
	assert.Equal(t, history.ErrInvalidDBPath, errors.CodeOf(err))
}
