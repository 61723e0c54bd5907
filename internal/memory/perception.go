package memory

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// RecordScreenCapture appends one row to the perception_screen mirror.
// Best-effort: callers log and continue on error rather than blocking
// capture on persistence.
func (s *Store) RecordScreenCapture(ctx context.Context, id string, ts time.Time, app, window string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO perception_screen (id, timestamp, focused_app, focused_window) VALUES (?, ?, ?, ?)
		`, id, ts.UTC().Format(time.RFC3339), app, window)

		return err
	})
}

// RecordTerminalCapture appends one row to the perception_terminal mirror.
func (s *Store) RecordTerminalCapture(ctx context.Context, id string, ts time.Time, command string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO perception_terminal (id, timestamp, command) VALUES (?, ?, ?)
		`, id, ts.UTC().Format(time.RFC3339), command)

		return err
	})
}

// ScreenCaptureRow is one row read back from perception_screen, used by
// distillation's working-style computation.
type ScreenCaptureRow struct {
	Timestamp     time.Time
	FocusedApp    string
	FocusedWindow string
}

// RecentScreenCaptures reads perception_screen rows since a cutoff, ordered
// by timestamp.
func (s *Store) RecentScreenCaptures(ctx context.Context, since time.Time) ([]ScreenCaptureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, focused_app, focused_window FROM perception_screen
		WHERE timestamp >= ? ORDER BY timestamp
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScreenCaptureRow

	for rows.Next() {
		var (
			r  ScreenCaptureRow
			ts string
		)

		if err := rows.Scan(&ts, &r.FocusedApp, &r.FocusedWindow); err != nil {
			return nil, err
		}

		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, r)
	}

	return out, rows.Err()
}

// TerminalCaptureRow is one row read back from perception_terminal.
type TerminalCaptureRow struct {
	Timestamp time.Time
	Command   string
}

// RecentTerminalCaptures reads perception_terminal rows since a cutoff.
func (s *Store) RecentTerminalCaptures(ctx context.Context, since time.Time) ([]TerminalCaptureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, command FROM perception_terminal WHERE timestamp >= ? ORDER BY timestamp
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TerminalCaptureRow

	for rows.Next() {
		var (
			r  TerminalCaptureRow
			ts string
		)

		if err := rows.Scan(&ts, &r.Command); err != nil {
			return nil, err
		}

		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, r)
	}

	return out, rows.Err()
}

// GetPerceptionState reads one perception_state value, returning "" if
// absent.
func (s *Store) GetPerceptionState(ctx context.Context, key string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM perception_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}

	return value, err
}

// SetPerceptionState upserts one perception_state key, used by
// distillation's run-gating (lastRun, lastProfileUpdate, lastGraphUpdate,
// lastCardGeneration keys).
func (s *Store) SetPerceptionState(ctx context.Context, key, value string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO perception_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().UTC().Format(time.RFC3339))

		return err
	})
}

// RecentMemoriesByTypes fetches up to limit non-deleted memories of any of
// the given types since a cutoff (zero time means all-time), newest last —
// the shape distillation's cognitive-profile step consumes.
func (s *Store) RecentMemoriesByTypes(ctx context.Context, types []Type, since time.Time, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 500
	}

	placeholders := make([]string, len(types))
	args := make([]any, 0, len(types)+2)

	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, string(t))
	}

	query := `SELECT id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at
		FROM memories WHERE is_deleted = 0 AND type IN (` + strings.Join(placeholders, ",") + `)`

	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory

	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, m)
	}

	return out, rows.Err()
}
