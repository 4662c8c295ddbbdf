package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const phoneColumn = "phone"

// readPhoneInput reads the phone column from a CSV file, or stdin for "-".
func readPhoneInput(path string, stdin io.Reader) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("input path is required")
	}
	if path == "-" {
		return parsePhoneCSV(stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close() // nolint:errcheck // best-effort cleanup on read-only file

	return parsePhoneCSV(file)
}

// parsePhoneCSV returns the phone cells in row order. Cells are kept as
// strings so leading zeros survive; validation happens per query.
func parsePhoneCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	column := -1
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(name), phoneColumn) {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("input has no %q column in its header row", phoneColumn)
	}

	phones := make([]string, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if column >= len(record) {
			phones = append(phones, "")
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		phones = append(phones, strings.TrimSpace(record[column]))
	}
	return phones, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
