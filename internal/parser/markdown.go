package parser

import (
	"strconv"
	"strings"

	"github.com/sells-group/commentary-cli/internal/model"
)

// AttributionMarkdown renders an attribution table as a markdown block for
// prompt injection. Returns "" when the table carries no data.
func AttributionMarkdown(t *model.AttributionTable) string {
	if !t.HasData() {
		return ""
	}

	var b strings.Builder
	b.WriteString("### " + t.SheetName + "\n\n")

	headers := append([]string{t.CategoryHeader}, t.MetricHeaders...)
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")

	writeRow := func(row model.AttributionRow) {
		values := []string{row.Category}
		for _, h := range t.MetricHeaders {
			values = append(values, formatMetric(row.Metrics[h]))
		}
		b.WriteString("| " + strings.Join(values, " | ") + " |\n")
	}

	for _, row := range t.Rows {
		writeRow(row)
	}
	if t.Total != nil {
		writeRow(*t.Total)
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatMetric(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
