package output

import (
	"fmt"
	"strings"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatJob renders one job record as Markdown.
func (f *MarkdownFormatter) FormatJob(job *core.Job) (string, error) {
	if job == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Job %s\n\n", escapeMarkdownCell(job.Handle)))
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")

	for _, row := range jobRows(job) {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n",
			escapeMarkdownCell(row.Label),
			escapeMarkdownCell(row.Value),
		))
	}

	sb.WriteString(renderDetailSections(detailSections(job), true))
	return sb.String(), nil
}

// FormatWindows renders admission windows as a Markdown table.
func (f *MarkdownFormatter) FormatWindows(windows []WindowView) (string, error) {
	if len(windows) == 0 {
		return "No admission windows match the query.", nil
	}

	var sb strings.Builder
	sb.WriteString("| Key | Used | Limit | Remaining | Window | Resets |\n")
	sb.WriteString("|-----|------|-------|-----------|--------|--------|\n")

	for _, w := range windows {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %s | %s |\n",
			escapeMarkdownCell(w.Key),
			w.Used,
			w.Limit,
			w.Remaining,
			escapeMarkdownCell(w.Window),
			formatTimestamp(w.ResetAt),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Windows**: %d\n", len(windows)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
