package runstate

import (
	"context"
	"fmt"
)

// Health aggregates store state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var health HealthSummary
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(1) FROM completed_inputs", &health.Completed},
		{"SELECT COUNT(1) FROM in_progress_inputs", &health.InProgress},
		{"SELECT COUNT(1) FROM transcripts", &health.Transcripts},
		{"SELECT COUNT(1) FROM pipeline_events", &health.Events},
	}
	for _, count := range counts {
		if err := s.db.QueryRowContext(ctx, count.query).Scan(count.dst); err != nil {
			return HealthSummary{}, fmt.Errorf("state health: %w", err)
		}
	}
	return health, nil
}

// ClearCompleted removes all completed-input records and returns the number
// removed.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM completed_inputs`)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ForgetCompleted removes one input from the completed set along with any
// saved transcript, making the input claimable on the next batch. It reports
// whether a completed record existed.
func (s *Store) ForgetCompleted(ctx context.Context, inputID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin forget tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM completed_inputs WHERE input_id = ?`, inputID)
	if err != nil {
		return false, fmt.Errorf("forget completed: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("forget completed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE input_id = ?`, inputID); err != nil {
		return false, fmt.Errorf("forget transcript: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit forget: %w", err)
	}
	return removed > 0, nil
}

// ClearAll resets the store: claims, completed records, transcripts, and the
// event log.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"in_progress_inputs", "completed_inputs", "transcripts", "pipeline_events"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}
