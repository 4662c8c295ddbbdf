package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phonelens/phonelens/internal/core"
)

// RecordLimitEvent persists one rate-limit detection.
func (s *Store) RecordLimitEvent(ctx context.Context, event core.LimitEvent) error {
	if err := s.ready(); err != nil {
		return err
	}

	recovered := 0
	if event.Recovered {
		recovered = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO limit_events (run_id, limit_count, wait_ms, recovered, detected_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(event.RunID), event.Count, event.Wait.Milliseconds(), recovered, event.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record limit event: %w", err)
	}
	return nil
}

// ListLimitEvents returns the limit events of a run in detection order.
// An empty runID lists every event.
func (s *Store) ListLimitEvents(ctx context.Context, runID string) ([]core.LimitEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := `SELECT run_id, limit_count, wait_ms, recovered, detected_at FROM limit_events`
	var args []any
	if runID = strings.TrimSpace(runID); runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY detected_at, id"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list limit events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var events []core.LimitEvent
	for rows.Next() {
		var (
			event      core.LimitEvent
			eventRunID *string
			waitMs     int64
			recovered  int
			detectedAt int64
		)
		if err := rows.Scan(&eventRunID, &event.Count, &waitMs, &recovered, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan limit event: %w", err)
		}
		if eventRunID != nil {
			event.RunID = *eventRunID
		}
		event.Wait = time.Duration(waitMs) * time.Millisecond
		event.Recovered = recovered != 0
		event.DetectedAt = time.UnixMilli(detectedAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list limit events: %w", err)
	}
	return events, nil
}
