package report_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/history"
	"codeberg.org/mutker/pgmon/internal/pgstat"
	"codeberg.org/mutker/pgmon/internal/report"
	"codeberg.org/mutker/pgmon/internal/trend"
)

func sampleReport() *pgstat.Report {
	return &pgstat.Report{
		CollectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Server: &pgstat.ServerInfo{
			Version:       "16.3",
			Database:      "orders",
			User:          "monitor",
			Deployment:    pgstat.DeploymentSelfHosted,
			UptimeSeconds: 90000,
		},
		Connections: &pgstat.ConnectionStats{
			MaxConnections: 100,
			Total:          42,
			Active:         5,
			Idle:           37,
			PercentUsed:    42.0,
		},
		Cache: &pgstat.CacheStats{
			BlocksHit:  9000,
			BlocksRead: 1000,
			HitRatio:   90.0,
		},
		Checkpoints: &pgstat.CheckpointStats{
			CheckpointsTimed:     30,
			CheckpointsRequested: 10,
			RequestedRatio:       25.0,
			WriteTimeMS:          5400,
			SyncTimeMS:           120,
			BuffersCheckpoint:    4096,
		},
		WAL: &pgstat.WALStatus{
			CurrentWALFile: "000000010000000A00000003",
			WrittenMB:      40963.2,
			FileCount:      12,
			DirSizeMB:      192.0,
		},
	}
}

func TestNewRendererUnknownFormat(t *testing.T) {
	_, err := report.NewRenderer("yaml")
	require.Error(t, err, "Expected unknown formats to be rejected")
	assert.Equal(t, report.ErrInvalidFormat, errors.CodeOf(err))
}

func TestTableRender(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatTable)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "PostgreSQL 16.3", "Expected the server line")
	assert.Contains(t, out, "Self-hosted")
	assert.Contains(t, out, "1d 1h 0m", "Expected uptime formatted in days and hours")
	assert.Contains(t, out, "Connections")
	assert.Contains(t, out, "42.0%")
	assert.Contains(t, out, "Buffer cache")
	assert.Contains(t, out, "9000")
	assert.Contains(t, out, "Checkpoints")
	assert.Contains(t, out, "25.0%", "Expected the requested checkpoint ratio")
	assert.Contains(t, out, "000000010000000A00000003", "Expected the current WAL segment")
}

func TestJSONRender(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.Render(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	server, ok := decoded["server"].(map[string]any)
	require.True(t, ok, "Expected a server object")
	assert.Equal(t, "16.3", server["version"])

	conns, ok := decoded["connections"].(map[string]any)
	require.True(t, ok, "Expected a connections object")
	assert.InDelta(t, 42.0, conns["percent_used"].(float64), 1e-9)

	checkpoints, ok := decoded["checkpoints"].(map[string]any)
	require.True(t, ok, "Expected a checkpoints object")
	assert.InDelta(t, 25.0, checkpoints["requested_ratio"].(float64), 1e-9)

	wal, ok := decoded["wal"].(map[string]any)
	require.True(t, ok, "Expected a wal object")
	assert.Equal(t, "000000010000000A00000003", wal["current_wal_file"])

	_, present := decoded["locks"]
	assert.False(t, present, "Expected unselected checks omitted from JSON")
}

func TestRenderTrendsTable(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatTable)
	require.NoError(t, err)

	trends := report.TrendReport{
		WindowHours: 24,
		Trends: []report.TrendLine{
			{
				Category: "performance",
				Name:     "tps",
				Current:  1600,
				Baseline: &history.AggregateResult{Avg: 1700, Min: 1600, Max: 1800, SampleCount: 3},
				Trend: &trend.Trend{
					BaselineAvg: 1700,
					DeltaPct:    -5.88,
					Direction:   trend.DirectionDecreased,
				},
			},
			{Category: "cache", Name: "hit_ratio", Current: 95},
			{
				Category: "database",
				Name:     "size_mb",
				Current:  12,
				Baseline: &history.AggregateResult{Avg: 0, SampleCount: 2},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderTrends(&buf, trends))
	out := buf.String()

	assert.Contains(t, out, "Trends over the last 24h")
	assert.Contains(t, out, "performance/tps")
	assert.Contains(t, out, "-5.88% (decreased)")
	assert.Contains(t, out, "no baseline", "Expected a marker for metrics without history")
	assert.Contains(t, out, "n/a", "Expected a marker for zero baselines")
}

func TestRenderTrendsWindowTitle(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatTable)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderTrends(&buf, report.TrendReport{WindowHours: 168}))
	assert.Contains(t, buf.String(), "Trends over the last 7d")
	assert.Contains(t, buf.String(), "No tracked metrics recorded yet")
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	var alerts []history.Alert
	for i := 0; i < 6; i++ {
		alerts = append(alerts, history.Alert{
			Timestamp: now.Add(time.Duration(-i) * time.Minute),
			Type:      "connections",
			Severity:  history.SeverityCritical,
			Message:   "pool exhausted",
		})
	}
	alerts = append(alerts,
		history.Alert{Timestamp: now.Add(-time.Hour), Severity: history.SeverityWarning, Type: "cache", Message: "hit ratio low"},
		history.Alert{Timestamp: now.Add(-2 * time.Hour), Severity: history.SeverityInfo, Type: "indexes", Message: "unused index"},
	)

	summary := report.Summarize(24*time.Hour, alerts)

	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 6, summary.Critical)
	assert.Equal(t, 1, summary.Warning)
	assert.Equal(t, 1, summary.Info)
	assert.InDelta(t, 24.0, summary.WindowHours, 1e-9)

	require.Len(t, summary.Recent, 5, "Expected the recent list capped")
	for _, alert := range summary.Recent {
		assert.Equal(t, history.SeverityCritical, alert.Severity,
			"Expected only criticals kept when present")
	}
	assert.Equal(t, alerts[0].Timestamp, summary.Recent[0].Timestamp,
		"Expected input order preserved")
}

func TestSummarizeFallsBackToWarnings(t *testing.T) {
	alerts := []history.Alert{
		{Severity: history.SeverityInfo, Type: "indexes", Message: "unused index"},
		{Severity: history.SeverityWarning, Type: "bloat", Message: "dead tuples"},
	}

	summary := report.Summarize(time.Hour, alerts)

	require.Len(t, summary.Recent, 1)
	assert.Equal(t, history.SeverityWarning, summary.Recent[0].Severity)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := report.Summarize(time.Hour, nil)

	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.Recent)
}

func TestRenderAlerts(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatTable)
	require.NoError(t, err)

	summary := report.Summarize(24*time.Hour, []history.Alert{
		{
			Timestamp: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
			Type:      "replication",
			Severity:  history.SeverityCritical,
			Message:   "standby lagging badly",
		},
	})

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderAlerts(&buf, summary))
	out := buf.String()

	assert.Contains(t, out, "Alerts in the last 24h")
	assert.Contains(t, out, "standby lagging badly")
	assert.Contains(t, out, "2025-06-01 09:30")
}

func TestRenderAlertsEmpty(t *testing.T) {
	renderer, err := report.NewRenderer(report.FormatTable)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderer.RenderAlerts(&buf, report.Summarize(24*time.Hour, nil)))
	assert.Contains(t, buf.String(), "None recorded")
}
