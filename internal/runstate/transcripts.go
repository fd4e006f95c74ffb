package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoTranscript indicates no saved transcript exists for the input.
var ErrNoTranscript = errors.New("no saved transcript")

// SaveTranscript records a transcription result so a failed analysis handoff
// can be retried later without re-transcribing. A second save for the same
// input replaces the first.
func (s *Store) SaveTranscript(ctx context.Context, record TranscriptRecord) error {
	if record.InputID == "" {
		return errors.New("save transcript: input id must not be empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (input_id, backend, model, language, transcript, segments_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(input_id) DO UPDATE SET
             backend = excluded.backend,
             model = excluded.model,
             language = excluded.language,
             transcript = excluded.transcript,
             segments_json = excluded.segments_json,
             created_at = excluded.created_at`,
		record.InputID, record.Backend, record.Model, record.Language,
		record.Transcript, nullableString(record.SegmentsJSON), now,
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// TranscriptFor returns the saved transcript for an input, or ErrNoTranscript.
func (s *Store) TranscriptFor(ctx context.Context, inputID string) (*TranscriptRecord, error) {
	var record TranscriptRecord
	var segments sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT input_id, backend, model, language, transcript, segments_json, created_at
         FROM transcripts WHERE input_id = ?`, inputID,
	).Scan(&record.InputID, &record.Backend, &record.Model, &record.Language,
		&record.Transcript, &segments, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoTranscript, inputID)
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	record.SegmentsJSON = segments.String
	record.CreatedAt = parseTimestamp(createdAt)
	return &record, nil
}

// DeleteTranscript removes a saved transcript. Missing rows are not an error.
func (s *Store) DeleteTranscript(ctx context.Context, inputID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE input_id = ?`, inputID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
