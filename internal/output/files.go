package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phonelens/phonelens/internal/core"
)

// FileWriter rewrites the result files with the full set of results so far.
// A crash between flushes leaves the previous complete file in place.
type FileWriter struct {
	CSVPath  string
	JSONPath string
	RunID    string
	Now      func() time.Time
}

// Enabled reports whether any file is configured.
func (w *FileWriter) Enabled() bool {
	return w != nil && (strings.TrimSpace(w.CSVPath) != "" || strings.TrimSpace(w.JSONPath) != "")
}

// Write replaces the configured files.
func (w *FileWriter) Write(results []*core.CheckResult) error {
	if !w.Enabled() {
		return nil
	}

	if path := strings.TrimSpace(w.CSVPath); path != "" {
		if err := writeAtomic(path, func(out io.Writer) error {
			return WriteCSV(out, results)
		}); err != nil {
			return fmt.Errorf("write csv %s: %w", path, err)
		}
	}

	if path := strings.TrimSpace(w.JSONPath); path != "" {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		doc := NewDocument(w.RunID, now(), results)
		if err := writeAtomic(path, func(out io.Writer) error {
			data, err := (&JSONFormatter{Indent: true}).marshal(doc)
			if err != nil {
				return err
			}
			_, err = out.Write(append(data, '\n'))
			return err
		}); err != nil {
			return fmt.Errorf("write json %s: %w", path, err)
		}
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	// #nosec G301 -- output directories use 0755 like the store directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// #nosec G302 -- result files are meant to be shared
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
