package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/phonelens/phonelens/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResults renders results as a table.
func (f *TableFormatter) FormatResults(results []*core.CheckResult) (string, error) {
	results = compact(results)
	if len(results) == 0 {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(roundedStyle())
	t.AppendHeader(table.Row{"Phone", "Status", "Name"})

	for _, r := range results {
		t.AppendRow(table.Row{r.Phone, r.StatusLabel(), r.Name})
	}

	if len(results) > 1 {
		found := 0
		for _, r := range results {
			if r.Status == core.StatusHasAccount {
				found++
			}
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d with account", found, len(results)), ""})
	}

	return t.Render(), nil
}

// FormatSummary renders a run summary with per-status percentages.
func FormatSummary(summary *core.RunSummary) string {
	if summary == nil {
		return ""
	}

	t := table.NewWriter()
	t.SetStyle(roundedStyle())
	t.SetTitle("Run %s", summary.RunID)
	t.AppendHeader(table.Row{"Status", "Count", "Share"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	for _, row := range SummaryRows(summary) {
		t.AppendRow(table.Row{string(row.Status), row.Count, fmt.Sprintf("%.1f%%", row.Percent)})
	}

	processed := fmt.Sprintf("%d/%d", summary.Processed, summary.Total)
	if summary.Stopped {
		processed += " (stopped)"
	}
	t.AppendFooter(table.Row{"processed", processed, ""})
	t.AppendFooter(table.Row{"elapsed", summary.Elapsed().Round(time.Second).String(), fmt.Sprintf("%.1f/min", summary.PerMinute())})

	return t.Render()
}

// roundedStyle is StyleRounded with footers left in their original case.
func roundedStyle() table.Style {
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	return style
}
