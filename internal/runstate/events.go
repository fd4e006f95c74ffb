package runstate

import (
	"context"
	"fmt"
	"time"
)

// LogEvent appends one row to the pipeline event log. Event logging is
// best-effort context for operators; callers treat failures as non-fatal.
func (s *Store) LogEvent(ctx context.Context, event Event) error {
	if event.InputID == "" || event.EventType == "" {
		return fmt.Errorf("log event: input id and event type are required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_events (input_id, run_id, event_type, step, backend, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.InputID,
		nullableString(event.RunID),
		event.EventType,
		nullableString(event.Step),
		nullableString(event.Backend),
		nullableString(event.Detail),
		now,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// EventsFor returns events for one input in insertion order, capped at limit
// when limit is positive.
func (s *Store) EventsFor(ctx context.Context, inputID string, limit int) ([]Event, error) {
	query := `SELECT id, input_id, COALESCE(run_id, ''), event_type,
                     COALESCE(step, ''), COALESCE(backend, ''), COALESCE(detail, ''), created_at
              FROM pipeline_events WHERE input_id = ? ORDER BY id`
	args := []any{inputID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var createdAt string
		if err := rows.Scan(&event.ID, &event.InputID, &event.RunID, &event.EventType,
			&event.Step, &event.Backend, &event.Detail, &createdAt); err != nil {
			return nil, err
		}
		event.CreatedAt = parseTimestamp(createdAt)
		events = append(events, event)
	}
	return events, rows.Err()
}
