package output

import (
	"encoding/json"
	"time"

	"github.com/phonelens/phonelens/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// Document is the structured result file: the same rows as the CSV plus provenance.
type Document struct {
	RunID       string              `json:"run_id,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Count       int                 `json:"count"`
	Results     []*core.CheckResult `json:"results"`
}

// NewDocument builds a document over results.
func NewDocument(runID string, generatedAt time.Time, results []*core.CheckResult) Document {
	results = compact(results)
	return Document{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		Count:       len(results),
		Results:     results,
	}
}

// FormatResults renders results as a JSON array.
func (f *JSONFormatter) FormatResults(results []*core.CheckResult) (string, error) {
	data, err := f.marshal(compact(results))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) marshal(value any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(value, "", "  ")
	}
	return json.Marshal(value)
}
