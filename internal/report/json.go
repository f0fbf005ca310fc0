package report

import (
	"encoding/json"
	"io"

	"codeberg.org/mutker/pgmon/internal/pgstat"
)

type jsonRenderer struct{}

func (r *jsonRenderer) Render(w io.Writer, report *pgstat.Report) error {
	return writeJSON(w, report)
}

func (r *jsonRenderer) RenderTrends(w io.Writer, trends TrendReport) error {
	return writeJSON(w, trends)
}

func (r *jsonRenderer) RenderAlerts(w io.Writer, summary AlertSummary) error {
	return writeJSON(w, summary)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return renderErr(enc.Encode(v))
}
