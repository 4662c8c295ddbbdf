package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phonelens/phonelens/internal/core"
)

// ResultFilter narrows ListResults. Zero values match everything.
type ResultFilter struct {
	RunID  string
	Phone  string
	Status core.Status
	Limit  int
}

// SaveResult persists one check result. Saving the same check id twice
// replaces the earlier row.
func (s *Store) SaveResult(ctx context.Context, result *core.CheckResult) error {
	if err := s.ready(); err != nil {
		return err
	}
	if result == nil {
		return errors.New("result is required")
	}
	if strings.TrimSpace(result.Provenance.CheckID) == "" {
		return errors.New("result check id is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (
			check_id, run_id, phone, status, name, reason, source, tool_version, requested_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.Provenance.CheckID,
		nullString(result.Provenance.RunID),
		result.Phone,
		string(result.Status),
		nullString(result.Name),
		nullString(result.Reason),
		nullString(result.Provenance.Source),
		nullString(result.Provenance.ToolVersion),
		result.Provenance.RequestedAt.UnixMilli(),
		result.Provenance.ResolvedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// ListResults returns results in resolution order.
func (s *Store) ListResults(ctx context.Context, filter ResultFilter) ([]*core.CheckResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		clauses []string
		args    []any
	)
	if runID := strings.TrimSpace(filter.RunID); runID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, runID)
	}
	if phone := strings.TrimSpace(filter.Phone); phone != "" {
		clauses = append(clauses, "phone = ?")
		args = append(args, phone)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT check_id, run_id, phone, status, name, reason, source, tool_version, requested_at, resolved_at FROM results`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY resolved_at, check_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var results []*core.CheckResult
	for rows.Next() {
		var (
			checkID, phone, status                   string
			runID, name, reason, source, toolVersion sql.NullString
			requestedAt, resolvedAt                  int64
		)
		if err := rows.Scan(&checkID, &runID, &phone, &status, &name, &reason, &source, &toolVersion, &requestedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &core.CheckResult{
			Phone:  phone,
			Status: core.Status(status),
			Name:   name.String,
			Reason: reason.String,
			Provenance: core.Provenance{
				CheckID:     checkID,
				RunID:       runID.String,
				RequestedAt: time.UnixMilli(requestedAt).UTC(),
				ResolvedAt:  time.UnixMilli(resolvedAt).UTC(),
				Source:      source.String,
				ToolVersion: toolVersion.String,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
