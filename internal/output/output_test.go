package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phonelens/phonelens/internal/core"
)

func sampleResults() []*core.CheckResult {
	return []*core.CheckResult{
		{Phone: "0912345678", Status: core.StatusHasAccount, Name: "Nguyen Van A", Provenance: core.Provenance{CheckID: "c1"}},
		{Phone: "0912345679", Status: core.StatusNoAccount},
		nil,
		{Phone: "0912345670", Status: core.StatusError, Reason: "open search view: timeout"},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("csv")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

func TestCSVRendersErrorReason(t *testing.T) {
	rendered, err := NewFormatter(FormatCSV).FormatResults(sampleResults())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(rendered), "\n")
	require.Equal(t, []string{
		"phone,status,name",
		"0912345678,has_account,Nguyen Van A",
		"0912345679,no_account,",
		"0912345670,error: open search view: timeout,",
	}, lines)
}

func TestFormatters(t *testing.T) {
	table, err := NewFormatter(FormatTable).FormatResults(sampleResults())
	require.NoError(t, err)
	require.Contains(t, table, "Nguyen Van A")
	require.Contains(t, table, "1/3 with account")

	markdown, err := NewFormatter(FormatMarkdown).FormatResults([]*core.CheckResult{
		{Phone: "0912345678", Status: core.StatusHasAccount, Name: "A | B"},
	})
	require.NoError(t, err)
	require.Contains(t, markdown, "| 0912345678 | has_account | A \\| B |")

	rendered, err := NewFormatter(FormatJSON).FormatResults(sampleResults())
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 3)
	require.Equal(t, "has_account", decoded[0]["status"])

	empty, err := NewFormatter(FormatTable).FormatResults(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFormatSummary(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := &core.RunSummary{RunID: "run-a", Total: 5, StartedAt: start, FinishedAt: start.Add(2 * time.Minute)}
	for _, status := range []core.Status{core.StatusHasAccount, core.StatusHasAccount, core.StatusNoAccount, core.StatusRateLimited} {
		summary.Add(&core.CheckResult{Status: status})
	}

	rows := SummaryRows(summary)
	require.Len(t, rows, len(core.AllStatuses))
	require.Equal(t, core.StatusHasAccount, rows[0].Status)
	require.InDelta(t, 50.0, rows[0].Percent, 0.001)

	rendered := FormatSummary(summary)
	require.Contains(t, rendered, "run-a")
	require.Contains(t, rendered, "50.0%")
	require.Contains(t, rendered, "4/5")
	require.Contains(t, rendered, "2.0/min")
}

func TestFormatSummaryKeepsFooterCase(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := &core.RunSummary{RunID: "run-b", Total: 3, Stopped: true, StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	summary.Add(&core.CheckResult{Status: core.StatusNoAccount})

	rendered := FormatSummary(summary)
	require.Contains(t, rendered, "1m30s")
	require.Contains(t, rendered, "0.7/min")
	require.Contains(t, rendered, "1/3 (stopped)")
	require.NotContains(t, rendered, "STOPPED")
}

func TestFileWriterRewritesFiles(t *testing.T) {
	dir := t.TempDir()
	writer := &FileWriter{
		CSVPath:  filepath.Join(dir, "out", "results.csv"),
		JSONPath: filepath.Join(dir, "out", "results.json"),
		RunID:    "run-a",
		Now:      func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
	require.True(t, writer.Enabled())

	results := sampleResults()
	require.NoError(t, writer.Write(results[:1]))
	require.NoError(t, writer.Write(results))

	data, err := os.ReadFile(writer.CSVPath)
	require.NoError(t, err)
	require.Equal(t, 4, strings.Count(string(data), "\n"))

	data, err = os.ReadFile(writer.JSONPath)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "run-a", doc.RunID)
	require.Equal(t, 3, doc.Count)

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestFileWriterDisabled(t *testing.T) {
	var writer *FileWriter
	require.False(t, writer.Enabled())
	require.NoError(t, writer.Write(sampleResults()))
}
