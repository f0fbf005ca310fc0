package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/pgstat"
)

type tableRenderer struct{}

func (r *tableRenderer) Render(w io.Writer, report *pgstat.Report) error {
	sections := []func(io.Writer, *pgstat.Report) error{
		renderServer,
		renderConnections,
		renderCache,
		renderCheckpoints,
		renderTransactions,
		renderLocks,
		renderSlowQueries,
		renderBloat,
		renderVacuum,
		renderIndexes,
		renderSizes,
		renderWAL,
		renderReplication,
		renderRaisedAlerts,
		renderFailures,
	}
	for _, section := range sections {
		if err := section(w, report); err != nil {
			return err
		}
	}

	return nil
}

func (r *tableRenderer) RenderTrends(w io.Writer, trends TrendReport) error {
	title := fmt.Sprintf("Trends over the last %s", formatWindow(trends.WindowHours))
	if len(trends.Trends) == 0 {
		_, err := fmt.Fprintf(w, "\n%s\nNo tracked metrics recorded yet\n", title)
		return renderErr(err)
	}

	rows := make([][]string, 0, len(trends.Trends))
	for _, line := range trends.Trends {
		rows = append(rows, trendRow(line))
	}

	return renderTable(w, title,
		[]string{"Metric", "Current", "Baseline avg", "Change", "Samples"}, rows)
}

func (r *tableRenderer) RenderAlerts(w io.Writer, summary AlertSummary) error {
	title := fmt.Sprintf("Alerts in the last %s", formatWindow(summary.WindowHours))
	if summary.Total == 0 {
		_, err := fmt.Fprintf(w, "\n%s\nNone recorded\n", title)
		return renderErr(err)
	}

	counts := [][]string{{
		strconv.Itoa(summary.Total),
		strconv.Itoa(summary.Critical),
		strconv.Itoa(summary.Warning),
		strconv.Itoa(summary.Info),
	}}
	if err := renderTable(w, title, []string{"Total", "Critical", "Warning", "Info"}, counts); err != nil {
		return err
	}

	if len(summary.Recent) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(summary.Recent))
	for _, alert := range summary.Recent {
		rows = append(rows, []string{
			alert.Timestamp.Format("2006-01-02 15:04"),
			string(alert.Severity),
			alert.Type,
			alert.Message,
		})
	}

	return renderTable(w, "Most recent", []string{"Time", "Severity", "Type", "Message"}, rows)
}

func renderServer(w io.Writer, report *pgstat.Report) error {
	if report.Server == nil {
		return nil
	}
	server := report.Server
	_, err := fmt.Fprintf(w, "PostgreSQL %s, database %s (%s), up %s\n",
		server.Version, server.Database, server.Deployment,
		formatUptime(server.UptimeSeconds))

	return renderErr(err)
}

func renderConnections(w io.Writer, report *pgstat.Report) error {
	if report.Connections == nil {
		return nil
	}
	s := report.Connections
	rows := [][]string{{
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Active),
		strconv.Itoa(s.Idle),
		strconv.Itoa(s.IdleInTransaction),
		strconv.Itoa(s.MaxConnections),
		fmt.Sprintf("%.1f%%", s.PercentUsed),
	}}

	return renderTable(w, "Connections",
		[]string{"Total", "Active", "Idle", "Idle in txn", "Max", "Used"}, rows)
}

func renderCache(w io.Writer, report *pgstat.Report) error {
	if report.Cache == nil {
		return nil
	}
	s := report.Cache
	rows := [][]string{{
		strconv.FormatInt(s.BlocksHit, 10),
		strconv.FormatInt(s.BlocksRead, 10),
		fmt.Sprintf("%.1f%%", s.HitRatio),
	}}

	return renderTable(w, "Buffer cache",
		[]string{"Blocks hit", "Blocks read", "Hit ratio"}, rows)
}

func renderCheckpoints(w io.Writer, report *pgstat.Report) error {
	if report.Checkpoints == nil {
		return nil
	}
	s := report.Checkpoints
	rows := [][]string{{
		strconv.FormatInt(s.CheckpointsTimed, 10),
		strconv.FormatInt(s.CheckpointsRequested, 10),
		fmt.Sprintf("%.1f%%", s.RequestedRatio),
		fmt.Sprintf("%.1f", s.WriteTimeMS),
		fmt.Sprintf("%.1f", s.SyncTimeMS),
		strconv.FormatInt(s.BuffersCheckpoint, 10),
		strconv.FormatInt(s.BuffersClean, 10),
		strconv.FormatInt(s.BuffersBackend, 10),
	}}

	return renderTable(w, "Checkpoints",
		[]string{"Timed", "Requested", "Requested ratio", "Write ms", "Sync ms",
			"Ckpt buffers", "Clean buffers", "Backend buffers"}, rows)
}

func renderTransactions(w io.Writer, report *pgstat.Report) error {
	if report.Transactions == nil {
		return nil
	}
	s := report.Transactions
	rows := [][]string{{
		strconv.FormatInt(s.Commits, 10),
		strconv.FormatInt(s.Rollbacks, 10),
		fmt.Sprintf("%.1f", s.TPS),
		fmt.Sprintf("%.1f%%", s.RollbackRatio),
	}}

	return renderTable(w, "Transactions",
		[]string{"Commits", "Rollbacks", "TPS", "Rollback ratio"}, rows)
}

func renderLocks(w io.Writer, report *pgstat.Report) error {
	if report.Locks == nil {
		return nil
	}
	if len(report.Locks) == 0 {
		_, err := fmt.Fprintf(w, "\nLocks\nNo blocked sessions\n")
		return renderErr(err)
	}

	rows := make([][]string, 0, len(report.Locks))
	for _, lock := range report.Locks {
		rows = append(rows, []string{
			strconv.Itoa(lock.BlockedPID),
			fmt.Sprintf("%.1fs", lock.BlockedSeconds),
			lock.BlockedQuery,
			strconv.Itoa(lock.BlockingPID),
			lock.BlockingQuery,
		})
	}

	return renderTable(w, "Locks",
		[]string{"Blocked PID", "Waiting", "Blocked query", "Blocking PID", "Blocking query"}, rows)
}

func renderSlowQueries(w io.Writer, report *pgstat.Report) error {
	if report.SlowQueries == nil {
		return nil
	}
	slow := report.SlowQueries
	title := fmt.Sprintf("Slow queries (%s)", slow.Source)

	if slow.Source == pgstat.SourceStatements {
		if len(slow.Statements) == 0 {
			_, err := fmt.Fprintf(w, "\n%s\nNone above threshold\n", title)
			return renderErr(err)
		}
		rows := make([][]string, 0, len(slow.Statements))
		for _, stmt := range slow.Statements {
			rows = append(rows, []string{
				stmt.Query,
				strconv.FormatInt(stmt.Calls, 10),
				fmt.Sprintf("%.1f", stmt.MeanTimeMS),
				fmt.Sprintf("%.1f", stmt.TotalTimeMS),
				fmt.Sprintf("%.1f", stmt.MaxTimeMS),
			})
		}

		return renderTable(w, title,
			[]string{"Query", "Calls", "Mean ms", "Total ms", "Max ms"}, rows)
	}

	if len(slow.Running) == 0 {
		_, err := fmt.Fprintf(w, "\n%s\nNo long-running queries\n", title)
		return renderErr(err)
	}
	rows := make([][]string, 0, len(slow.Running))
	for _, running := range slow.Running {
		rows = append(rows, []string{
			strconv.Itoa(running.PID),
			running.State,
			fmt.Sprintf("%.1fs", running.RunningSeconds),
			running.Query,
		})
	}

	return renderTable(w, title, []string{"PID", "State", "Running", "Query"}, rows)
}

func renderBloat(w io.Writer, report *pgstat.Report) error {
	if report.Bloat == nil {
		return nil
	}
	if len(report.Bloat) == 0 {
		_, err := fmt.Fprintf(w, "\nBloat\nNo dead tuples\n")
		return renderErr(err)
	}

	rows := make([][]string, 0, len(report.Bloat))
	for _, table := range report.Bloat {
		rows = append(rows, []string{
			table.Schema,
			table.Table,
			strconv.FormatInt(table.LiveTuples, 10),
			strconv.FormatInt(table.DeadTuples, 10),
			fmt.Sprintf("%.1f%%", table.DeadRatio),
		})
	}

	return renderTable(w, "Bloat",
		[]string{"Schema", "Table", "Live", "Dead", "Dead ratio"}, rows)
}

func renderVacuum(w io.Writer, report *pgstat.Report) error {
	if report.Vacuum == nil {
		return nil
	}
	rows := make([][]string, 0, len(report.Vacuum))
	for _, table := range report.Vacuum {
		rows = append(rows, []string{
			table.Schema,
			table.Table,
			formatLastRun(table.LastVacuum, table.LastAutovacuum),
			formatLastRun(table.LastAnalyze, table.LastAutoanalyze),
			strconv.FormatInt(table.DeadTuples, 10),
			fmt.Sprintf("%.0f", table.Score),
		})
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "\nVacuum health\nNo user tables with activity\n")
		return renderErr(err)
	}

	return renderTable(w, "Vacuum health",
		[]string{"Schema", "Table", "Last vacuum", "Last analyze", "Dead", "Score"}, rows)
}

func renderIndexes(w io.Writer, report *pgstat.Report) error {
	if report.Indexes == nil {
		return nil
	}
	if len(report.Indexes.Indexes) > 0 {
		rows := make([][]string, 0, len(report.Indexes.Indexes))
		for _, index := range report.Indexes.Indexes {
			rows = append(rows, []string{
				index.Schema,
				index.Table,
				index.Index,
				strconv.FormatInt(index.Scans, 10),
				fmt.Sprintf("%.1f", index.SizeMB),
			})
		}
		if err := renderTable(w, "Least used indexes",
			[]string{"Schema", "Table", "Index", "Scans", "Size MB"}, rows); err != nil {
			return err
		}
	}

	if len(report.Indexes.SeqScanHeavy) > 0 {
		rows := make([][]string, 0, len(report.Indexes.SeqScanHeavy))
		for _, table := range report.Indexes.SeqScanHeavy {
			rows = append(rows, []string{
				table.Schema,
				table.Table,
				strconv.FormatInt(table.SeqScans, 10),
				strconv.FormatInt(table.IdxScans, 10),
				strconv.FormatInt(table.Rows, 10),
			})
		}

		return renderTable(w, "Sequential scan heavy tables",
			[]string{"Schema", "Table", "Seq scans", "Idx scans", "Rows"}, rows)
	}

	return nil
}

func renderSizes(w io.Writer, report *pgstat.Report) error {
	if report.Sizes == nil {
		return nil
	}
	sizes := report.Sizes
	if _, err := fmt.Fprintf(w, "\nDatabase %s: %.1f MB\n",
		sizes.DatabaseName, sizes.DatabaseSizeMB); err != nil {
		return renderErr(err)
	}
	if len(sizes.Tables) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(sizes.Tables))
	for _, table := range sizes.Tables {
		rows = append(rows, []string{
			table.Schema,
			table.Table,
			fmt.Sprintf("%.1f", table.TotalSizeMB),
			fmt.Sprintf("%.1f", table.TableSizeMB),
			fmt.Sprintf("%.1f", table.IndexSizeMB),
		})
	}

	return renderTable(w, "Largest tables",
		[]string{"Schema", "Table", "Total MB", "Table MB", "Index MB"}, rows)
}

func renderWAL(w io.Writer, report *pgstat.Report) error {
	if report.WAL == nil {
		return nil
	}
	s := report.WAL
	rows := [][]string{{
		s.CurrentWALFile,
		fmt.Sprintf("%.1f", s.WrittenMB),
		strconv.FormatInt(s.FileCount, 10),
		fmt.Sprintf("%.1f", s.DirSizeMB),
	}}

	return renderTable(w, "WAL",
		[]string{"Current segment", "Written MB", "Segments", "On disk MB"}, rows)
}

func renderReplication(w io.Writer, report *pgstat.Report) error {
	if report.Replication == nil {
		return nil
	}
	if report.Replication.InRecovery {
		_, err := fmt.Fprintf(w, "\nReplication\nStandby server (in recovery)\n")
		return renderErr(err)
	}
	if len(report.Replication.Replicas) == 0 {
		_, err := fmt.Fprintf(w, "\nReplication\nNo attached standbys\n")
		return renderErr(err)
	}

	rows := make([][]string, 0, len(report.Replication.Replicas))
	for _, replica := range report.Replication.Replicas {
		rows = append(rows, []string{
			replica.ClientAddr,
			replica.State,
			replica.SyncState,
			fmt.Sprintf("%.1f", replica.LagMB),
		})
	}

	return renderTable(w, "Replication",
		[]string{"Client", "State", "Sync", "Lag MB"}, rows)
}

func renderRaisedAlerts(w io.Writer, report *pgstat.Report) error {
	if len(report.Alerts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(report.Alerts))
	for _, alert := range report.Alerts {
		rows = append(rows, []string{
			string(alert.Severity),
			alert.Type,
			alert.Message,
		})
	}

	return renderTable(w, "Alerts raised",
		[]string{"Severity", "Type", "Message"}, rows)
}

func renderFailures(w io.Writer, report *pgstat.Report) error {
	if len(report.Failures) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(report.Failures))
	for _, failure := range report.Failures {
		rows = append(rows, []string{failure.Check, failure.Error})
	}

	return renderTable(w, "Failed checks", []string{"Check", "Error"}, rows)
}

func renderTable(w io.Writer, title string, header []string, rows [][]string) error {
	if _, err := fmt.Fprintf(w, "\n%s\n", title); err != nil {
		return renderErr(err)
	}

	table := tablewriter.NewWriter(w)
	table.Header(headerCells(header)...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return renderErr(err)
		}
	}

	return renderErr(table.Render())
}

func headerCells(cells []string) []any {
	out := make([]any, len(cells))
	for i, cell := range cells {
		out[i] = cell
	}

	return out
}

func trendRow(line TrendLine) []string {
	metric := line.Category + "/" + line.Name
	current := fmt.Sprintf("%.2f", line.Current)

	switch {
	case line.Baseline == nil:
		return []string{metric, current, "n/a", "no baseline", "0"}
	case line.Trend == nil:
		return []string{metric, current,
			fmt.Sprintf("%.2f", line.Baseline.Avg), "n/a",
			strconv.FormatInt(line.Baseline.SampleCount, 10)}
	default:
		change := fmt.Sprintf("%+.2f%% (%s)", line.Trend.DeltaPct, line.Trend.Direction)
		return []string{metric, current,
			fmt.Sprintf("%.2f", line.Trend.BaselineAvg), change,
			strconv.FormatInt(line.Baseline.SampleCount, 10)}
	}
}

func formatWindow(hours float64) string {
	if hours > 24 && math.Mod(hours, 24) == 0 {
		return fmt.Sprintf("%dd", int(hours)/24)
	}

	return fmt.Sprintf("%.0fh", hours)
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func formatLastRun(a, b *time.Time) string {
	latest := a
	if latest == nil || (b != nil && b.After(*latest)) {
		latest = b
	}
	if latest == nil {
		return "never"
	}

	return latest.Format("2006-01-02 15:04")
}

func renderErr(err error) error {
	if err == nil {
		return nil
	}
	errFactory := errors.New()

	return errFactory.Wrap(ErrRenderReport, err)
}
