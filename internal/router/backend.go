package router

import (
	"context"
	"time"
)

// Request describes one transcription job.
type Request struct {
	AudioPath string
	Model     string
	Language  string
	Diarize   bool
}

// Segment is one span of transcribed speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Result is a completed transcription, tagged with the backend and model that
// produced it.
type Result struct {
	Text     string
	Segments []Segment
	Language string
	Backend  string
	Model    string
	Elapsed  time.Duration
}

// Backend is a transcription engine the router can dispatch to.
//
// Available is a cheap liveness probe; an error means the backend cannot take
// work right now and the router should skip it without counting a failure.
// Transcribe runs one job to completion.
type Backend interface {
	Name() string
	Available(ctx context.Context) error
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// BackendStatus is the probe outcome for one backend, used by status output.
type BackendStatus struct {
	Name      string
	Available bool
	Forced    bool
	Detail    string
}
