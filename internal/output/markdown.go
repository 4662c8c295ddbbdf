package output

import (
	"fmt"
	"strings"

	"github.com/phonelens/phonelens/internal/core"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResults renders results as Markdown.
func (f *MarkdownFormatter) FormatResults(results []*core.CheckResult) (string, error) {
	results = compact(results)
	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("| Phone | Status | Name |\n")
	sb.WriteString("|-------|--------|------|\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(r.Phone),
			escapeMarkdownCell(r.StatusLabel()),
			escapeMarkdownCell(r.Name),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}
