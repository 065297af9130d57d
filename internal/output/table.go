package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatJob renders one job record as a field/value table followed by
// result and error detail sections.
func (f *TableFormatter) FormatJob(job *core.Job) (string, error) {
	if job == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})

	for _, row := range jobRows(job) {
		t.AppendRow(table.Row{row.Label, row.Value})
	}

	rendered := t.Render()
	rendered += renderDetailSections(detailSections(job), false)
	return rendered, nil
}

// FormatWindows renders admission windows as an ASCII table.
func (f *TableFormatter) FormatWindows(windows []WindowView) (string, error) {
	if len(windows) == 0 {
		return "No admission windows match the query.", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Used", "Limit", "Remaining", "Window", "Resets"})

	for _, w := range windows {
		t.AppendRow(table.Row{
			w.Key,
			w.Used,
			w.Limit,
			w.Remaining,
			w.Window,
			formatTimestamp(w.ResetAt),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d windows", len(windows)),
		"", "", "", "", "",
	})

	return t.Render(), nil
}
