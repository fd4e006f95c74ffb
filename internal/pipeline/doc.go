// Package pipeline orchestrates the processing of one watched-folder
// recording: download, transcribe, analysis handoff, relocate, cleanup.
//
// The orchestrator owns the step graph and the claim lifecycle. Each run
// claims its input in the state store, drives the fixed step chain through
// the task graph engine, and releases the claim with the run's outcome. A
// run whose transcription succeeded but whose handoff failed keeps its
// transcript in the store, so the next attempt skips straight to analysis.
// Cleanup removes staged audio whenever the download happened, regardless of
// how the rest of the run went.
package pipeline
