package pipeline

import (
	"context"
	"time"

	"murmur/internal/router"
	"murmur/internal/taskgraph"
)

// Step identifiers, also the context-store keys for step results.
const (
	StepDownload   = "download"
	StepTranscribe = "transcribe"
	StepHandoff    = "handoff"
	StepRelocate   = "relocate"
	StepCleanup    = "cleanup"
)

// Input identifies one recording in remote storage.
type Input struct {
	ID       string
	Name     string
	Size     int64
	Recorded time.Time
}

// Storage is the remote watched folder: list what is waiting, fetch one file
// to local staging, and move it to the processed area when done.
type Storage interface {
	List(ctx context.Context) ([]Input, error)
	Download(ctx context.Context, input Input, destPath string) error
	Relocate(ctx context.Context, input Input, newName string) error
}

// Transcriber dispatches one transcription job. *router.Router satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, req router.Request) (*router.Result, error)
}

// Analyzer turns a transcript into notes. The orchestrator calls it at most
// once per handoff attempt and owns the retry schedule.
type Analyzer interface {
	Analyze(ctx context.Context, transcript, fileName string, recorded time.Time) (string, error)
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID   string
	Input   Input
	Success bool

	// Backend names the transcription backend used; Reused marks a
	// transcript recovered from an earlier run whose handoff failed.
	Backend string
	Reused  bool

	TranscriptPath string
	NotesPath      string
	ProcessedName  string

	Graph    *taskgraph.Report
	Started  time.Time
	Finished time.Time
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// BatchReport summarizes one polling pass.
type BatchReport struct {
	Claimable int
	Processed int
	Failed    int
	Reports   []*Report
	Started   time.Time
	Finished  time.Time
}

// Duration returns the wall-clock time of the batch.
func (r *BatchReport) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
