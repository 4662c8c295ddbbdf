package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT,
		total INTEGER NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		counts TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS results (
		check_id TEXT PRIMARY KEY,
		run_id TEXT,
		phone TEXT NOT NULL,
		status TEXT NOT NULL,
		name TEXT,
		reason TEXT,
		source TEXT,
		tool_version TEXT,
		requested_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, resolved_at);`,
	`CREATE INDEX IF NOT EXISTS idx_results_phone ON results(phone, resolved_at);`,
	`CREATE TABLE IF NOT EXISTS limit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		limit_count INTEGER NOT NULL,
		wait_ms INTEGER NOT NULL,
		recovered INTEGER NOT NULL,
		detected_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_limit_events_run ON limit_events(run_id, detected_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	// Added after the first release of the runs table.
	if err := s.ensureColumn(ctx, "runs", "stopped", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
