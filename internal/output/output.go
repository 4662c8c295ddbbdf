package output

import (
	"fmt"
	"strings"

	"github.com/phonelens/phonelens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formatter renders check results.
type Formatter interface {
	FormatResults(results []*core.CheckResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatCSV):
		return FormatCSV, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func compact(results []*core.CheckResult) []*core.CheckResult {
	out := make([]*core.CheckResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// SummaryRow is one status line of a run summary.
type SummaryRow struct {
	Status  core.Status
	Count   int
	Percent float64
}

// SummaryRows breaks a run down by status in reporting order.
func SummaryRows(summary *core.RunSummary) []SummaryRow {
	if summary == nil {
		return nil
	}
	rows := make([]SummaryRow, 0, len(core.AllStatuses))
	for _, status := range core.AllStatuses {
		count := summary.Counts[status]
		var percent float64
		if summary.Processed > 0 {
			percent = float64(count) * 100 / float64(summary.Processed)
		}
		rows = append(rows, SummaryRow{Status: status, Count: count, Percent: percent})
	}
	return rows
}
