package output

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/phonelens/phonelens/internal/core"
)

// CSVHeader is the result file header.
var CSVHeader = []string{"phone", "status", "name"}

// CSVFormatter renders results as CSV.
type CSVFormatter struct{}

// FormatResults renders results as CSV with a header row.
func (f *CSVFormatter) FormatResults(results []*core.CheckResult) (string, error) {
	var sb strings.Builder
	if err := WriteCSV(&sb, results); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteCSV writes the header and one row per result. Errors render as
// "error: <reason>" in the status column.
func WriteCSV(w io.Writer, results []*core.CheckResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range compact(results) {
		if err := writer.Write([]string{r.Phone, r.StatusLabel(), r.Name}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
