package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"murmur/internal/config"
)

// ErrClaimConflict indicates the input is already claimed or completed.
var ErrClaimConflict = errors.New("input already claimed or completed")

// Store manages processing state backed by SQLite.
type Store struct {
	db        *sql.DB
	path      string
	retention int
}

// Open initializes or connects to the state database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, retention: cfg.State.CompletedRetention}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// TryClaim atomically claims an input for processing. It returns false when
// the input is already in progress or recorded as completed. The check and
// the insert execute as one statement, so two concurrent callers can never
// both claim the same input.
func (s *Store) TryClaim(ctx context.Context, inputID, inputName, runID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO in_progress_inputs (input_id, input_name, run_id, claimed_at, heartbeat_at)
         SELECT ?, ?, ?, ?, ?
         WHERE NOT EXISTS (SELECT 1 FROM completed_inputs WHERE input_id = ?)
         ON CONFLICT(input_id) DO NOTHING`,
		inputID, inputName, runID, now, now, inputID,
	)
	if err != nil {
		return false, fmt.Errorf("claim input: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// Claim is TryClaim with a conflict error instead of a boolean.
func (s *Store) Claim(ctx context.Context, inputID, inputName, runID string) error {
	claimed, err := s.TryClaim(ctx, inputID, inputName, runID)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%w: %s", ErrClaimConflict, inputID)
	}
	return nil
}

// Heartbeat refreshes the claim's liveness timestamp.
func (s *Store) Heartbeat(ctx context.Context, inputID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE in_progress_inputs SET heartbeat_at = ? WHERE input_id = ?`,
		now, inputID,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Release ends a claim. When completed is true the input is recorded in the
// completed set, its saved transcript is discarded, and the completed set is
// trimmed to the retention cap. When completed is false the claim is simply
// removed: the input becomes claimable again and any saved transcript
// survives for the next attempt.
func (s *Store) Release(ctx context.Context, inputID string, completed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inputName, runID string
	err = tx.QueryRowContext(ctx,
		`SELECT input_name, run_id FROM in_progress_inputs WHERE input_id = ?`,
		inputID,
	).Scan(&inputName, &runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("release: input %q is not claimed", inputID)
		}
		return fmt.Errorf("release lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM in_progress_inputs WHERE input_id = ?`, inputID); err != nil {
		return fmt.Errorf("release delete claim: %w", err)
	}

	if completed {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completed_inputs (input_id, input_name, run_id, completed_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(input_id) DO UPDATE SET
                 input_name = excluded.input_name,
                 run_id = excluded.run_id,
                 completed_at = excluded.completed_at`,
			inputID, inputName, runID, now); err != nil {
			return fmt.Errorf("release record completion: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transcripts WHERE input_id = ?`, inputID); err != nil {
			return fmt.Errorf("release discard transcript: %w", err)
		}
		if s.retention > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM completed_inputs WHERE input_id IN (
                     SELECT input_id FROM completed_inputs
                     ORDER BY completed_at DESC, rowid DESC
                     LIMIT -1 OFFSET ?
                 )`, s.retention); err != nil {
				return fmt.Errorf("release trim completed: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// ListClaimable filters candidates down to those neither completed nor in
// progress, preserving the caller's order.
func (s *Store) ListClaimable(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	claimable := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM completed_inputs WHERE input_id = ?)
                 OR EXISTS (SELECT 1 FROM in_progress_inputs WHERE input_id = ?)`,
			candidate.ID, candidate.ID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check claimable: %w", err)
		}
		if exists == 0 {
			claimable = append(claimable, candidate)
		}
	}
	return claimable, nil
}

// IsCompleted reports whether the input finished the full pipeline.
func (s *Store) IsCompleted(ctx context.Context, inputID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM completed_inputs WHERE input_id = ?)`,
		inputID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completed: %w", err)
	}
	return exists == 1, nil
}

// ListInProgress returns the current claims ordered by claim time.
func (s *Store) ListInProgress(ctx context.Context) ([]ClaimRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input_id, input_name, run_id, claimed_at, heartbeat_at
         FROM in_progress_inputs ORDER BY claimed_at, input_id`)
	if err != nil {
		return nil, fmt.Errorf("list in progress: %w", err)
	}
	defer rows.Close()

	var claims []ClaimRecord
	for rows.Next() {
		var record ClaimRecord
		var claimedAt, heartbeatAt string
		if err := rows.Scan(&record.InputID, &record.InputName, &record.RunID, &claimedAt, &heartbeatAt); err != nil {
			return nil, err
		}
		record.ClaimedAt = parseTimestamp(claimedAt)
		record.Heartbeat = parseTimestamp(heartbeatAt)
		claims = append(claims, record)
	}
	return claims, rows.Err()
}

// ListCompleted returns completed inputs, most recent first, capped at limit
// when limit is positive.
func (s *Store) ListCompleted(ctx context.Context, limit int) ([]CompletedRecord, error) {
	query := `SELECT input_id, input_name, COALESCE(run_id, ''), completed_at
              FROM completed_inputs ORDER BY completed_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var records []CompletedRecord
	for rows.Next() {
		var record CompletedRecord
		var completedAt string
		if err := rows.Scan(&record.InputID, &record.InputName, &record.RunID, &completedAt); err != nil {
			return nil, err
		}
		record.CompletedAt = parseTimestamp(completedAt)
		records = append(records, record)
	}
	return records, rows.Err()
}

// ReclaimStale removes claims whose heartbeat is older than the cutoff,
// making those inputs claimable again. It returns the reclaimed records.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]ClaimRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT input_id, input_name, run_id, claimed_at, heartbeat_at
         FROM in_progress_inputs WHERE heartbeat_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale claims: %w", err)
	}
	var stale []ClaimRecord
	for rows.Next() {
		var record ClaimRecord
		var claimedAt, heartbeatAt string
		if err := rows.Scan(&record.InputID, &record.InputName, &record.RunID, &claimedAt, &heartbeatAt); err != nil {
			rows.Close()
			return nil, err
		}
		record.ClaimedAt = parseTimestamp(claimedAt)
		record.Heartbeat = parseTimestamp(heartbeatAt)
		stale = append(stale, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, record := range stale {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM in_progress_inputs WHERE input_id = ? AND heartbeat_at < ?`,
			record.InputID, cutoff); err != nil {
			return nil, fmt.Errorf("reclaim stale claim: %w", err)
		}
	}
	return stale, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
