package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phonelens/phonelens/internal/core"
)

// RunRecord is a stored batch run.
type RunRecord struct {
	Input   string
	Summary core.RunSummary
}

// StartRun records the beginning of a batch run.
func (s *Store) StartRun(ctx context.Context, summary *core.RunSummary, input string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if summary == nil || strings.TrimSpace(summary.RunID) == "" {
		return errors.New("run id is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, input, total, processed, started_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			input = excluded.input,
			total = excluded.total,
			started_at = excluded.started_at
	`, summary.RunID, nullString(input), summary.Total, summary.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(ctx context.Context, summary *core.RunSummary) error {
	if err := s.ready(); err != nil {
		return err
	}
	if summary == nil || strings.TrimSpace(summary.RunID) == "" {
		return errors.New("run id is required")
	}

	counts, err := json.Marshal(summary.Counts)
	if err != nil {
		return fmt.Errorf("encode run counts: %w", err)
	}

	stopped := 0
	if summary.Stopped {
		stopped = 1
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET processed = ?, counts = ?, stopped = ?, finished_at = ?
		WHERE id = ?
	`, summary.Processed, string(counts), stopped, summary.FinishedAt.UnixMilli(), summary.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %s", summary.RunID)
	}
	return nil
}

// GetRun returns a stored run, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, input, total, processed, counts, stopped, started_at, finished_at
		FROM runs WHERE id = ?
	`, strings.TrimSpace(runID))

	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// LatestRunID returns the most recently started run, or "" when there is none.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	var id string
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		id         string
		input      sql.NullString
		total      int
		processed  int
		counts     sql.NullString
		stopped    int
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&id, &input, &total, &processed, &counts, &stopped, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	record := &RunRecord{
		Input: input.String,
		Summary: core.RunSummary{
			RunID:     id,
			Total:     total,
			Processed: processed,
			Counts:    map[core.Status]int{},
			Stopped:   stopped != 0,
			StartedAt: time.UnixMilli(startedAt).UTC(),
		},
	}
	if finishedAt.Valid {
		record.Summary.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &record.Summary.Counts); err != nil {
			return nil, fmt.Errorf("decode run counts: %w", err)
		}
	}
	return record, nil
}
