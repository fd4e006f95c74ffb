package runstate

import "time"

// Candidate identifies an input discovered in the watched folder, before the
// store has decided whether it needs processing.
type Candidate struct {
	ID   string
	Name string
}

// ClaimRecord describes an input currently being processed.
type ClaimRecord struct {
	InputID   string
	InputName string
	RunID     string
	ClaimedAt time.Time
	Heartbeat time.Time
}

// CompletedRecord describes an input that finished the full pipeline.
type CompletedRecord struct {
	InputID     string
	InputName   string
	RunID       string
	CompletedAt time.Time
}

// TranscriptRecord holds a transcription result saved before the analysis
// handoff, so a failed handoff can be retried without re-transcribing.
type TranscriptRecord struct {
	InputID      string
	Backend      string
	Model        string
	Language     string
	Transcript   string
	SegmentsJSON string
	CreatedAt    time.Time
}

// Event is one row of the pipeline event log.
type Event struct {
	ID        int64
	InputID   string
	RunID     string
	EventType string
	Step      string
	Backend   string
	Detail    string
	CreatedAt time.Time
}

// HealthSummary aggregates store state for diagnostic output.
type HealthSummary struct {
	Completed   int
	InProgress  int
	Transcripts int
	Events      int
}
