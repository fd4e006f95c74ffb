package pipeline_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/pipeline"
	"murmur/internal/router"
	"murmur/internal/runstate"
	"murmur/internal/taskgraph"
	"murmur/internal/testsupport"
)

type fakeStorage struct {
	mu        sync.Mutex
	inputs    []pipeline.Input
	relocated map[string]string

	downloadErr error
	relocateErr error
}

func (f *fakeStorage) List(context.Context) ([]pipeline.Input, error) {
	return f.inputs, nil
}

func (f *fakeStorage) Download(_ context.Context, input pipeline.Input, destPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(destPath, []byte("audio bytes for "+input.ID), 0o644)
}

func (f *fakeStorage) Relocate(_ context.Context, input pipeline.Input, newName string) error {
	if f.relocateErr != nil {
		return f.relocateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.relocated == nil {
		f.relocated = make(map[string]string)
	}
	f.relocated[input.ID] = newName
	return nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req router.Request) (*router.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &router.Result{
		Text:     "transcribed audio from " + req.AudioPath,
		Language: "en",
		Backend:  "gpu_server",
		Model:    req.Model,
		Segments: []router.Segment{{Start: 0, End: 1.5, Text: "hello"}},
	}, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, transcript, fileName string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("analysis service unavailable")
	}
	return "# Notes: " + fileName + "\n\n" + transcript, nil
}

func newTestOrchestrator(t *testing.T, storage *fakeStorage, transcriber *fakeTranscriber, analyzer *fakeAnalyzer) (*pipeline.Orchestrator, *runstate.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orchestrator, err := pipeline.New(cfg, store, storage, transcriber, analyzer, nil, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return orchestrator, store, cfg.Paths.StagingDir
}

func TestProcessOneSucceeds(t *testing.T) {
	input := pipeline.Input{
		ID:       "voice_42",
		Name:     "standup.m4a",
		Recorded: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	storage := &fakeStorage{inputs: []pipeline.Input{input}}
	transcriber := &fakeTranscriber{}
	analyzer := &fakeAnalyzer{}
	orchestrator, store, stagingDir := newTestOrchestrator(t, storage, transcriber, analyzer)

	report, err := orchestrator.ProcessOne(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected success, graph: %+v", report.Graph.Steps)
	}
	for _, id := range []string{pipeline.StepDownload, pipeline.StepTranscribe, pipeline.StepHandoff, pipeline.StepRelocate, pipeline.StepCleanup} {
		if report.Graph.Steps[id].Status != taskgraph.StatusCompleted {
			t.Fatalf("step %s: %v (%v)", id, report.Graph.Steps[id].Status, report.Graph.Steps[id].Err)
		}
	}
	if report.Backend != "gpu_server" {
		t.Fatalf("backend: %q", report.Backend)
	}
	if report.Reused {
		t.Fatal("fresh transcription should not be marked reused")
	}

	if report.ProcessedName != "2026-03-14 - standup.m4a" {
		t.Fatalf("processed name: %q", report.ProcessedName)
	}
	if storage.relocated["voice_42"] != report.ProcessedName {
		t.Fatalf("relocate not recorded: %+v", storage.relocated)
	}

	for _, path := range []string{report.TranscriptPath, report.NotesPath} {
		if path == "" {
			t.Fatal("output path missing from report")
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("output file missing: %v", err)
		}
	}

	// Staged audio is gone after cleanup.
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not empty: %v", entries)
	}

	completed, err := store.IsCompleted(context.Background(), "voice_42")
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if !completed {
		t.Fatal("input should be recorded as completed")
	}

	events, err := store.EventsFor(context.Background(), "voice_42", 0)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType)
	}
	joined := strings.Join(types, ",")
	if !strings.Contains(joined, "run_started") || !strings.Contains(joined, "transcribed") || !strings.Contains(joined, "run_completed") {
		t.Fatalf("event trail incomplete: %v", types)
	}
}

func TestProcessOneHandoffFailureKeepsTranscript(t *testing.T) {
	input := pipeline.Input{ID: "voice_42", Name: "standup.m4a"}
	storage := &fakeStorage{inputs: []pipeline.Input{input}}
	transcriber := &fakeTranscriber{}
	analyzer := &fakeAnalyzer{failures: 100}
	orchestrator, store, stagingDir := newTestOrchestrator(t, storage, transcriber, analyzer)

	report, err := orchestrator.ProcessOne(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if report.Success {
		t.Fatal("expected failure")
	}

	steps := report.Graph.Steps
	if steps[pipeline.StepHandoff].Status != taskgraph.StatusFailed {
		t.Fatalf("handoff: %v", steps[pipeline.StepHandoff].Status)
	}
	if steps[pipeline.StepHandoff].Attempts != 3 {
		t.Fatalf("handoff attempts: %d", steps[pipeline.StepHandoff].Attempts)
	}
	if steps[pipeline.StepRelocate].Status != taskgraph.StatusSkipped {
		t.Fatalf("relocate should cascade-skip, got %v", steps[pipeline.StepRelocate].Status)
	}
	if steps[pipeline.StepCleanup].Status != taskgraph.StatusCompleted {
		t.Fatalf("cleanup must run regardless, got %v (%v)", steps[pipeline.StepCleanup].Status, steps[pipeline.StepCleanup].Err)
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staged audio should be removed: %v", entries)
	}

	// Not completed, claimable again, transcript retained for the next pass.
	completed, err := store.IsCompleted(context.Background(), "voice_42")
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if completed {
		t.Fatal("failed run must not mark the input completed")
	}
	claimed, err := store.TryClaim(context.Background(), "voice_42", "standup.m4a", "retry-run")
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	if !claimed {
		t.Fatal("claim should be released after a failed run")
	}
	record, err := store.TranscriptFor(context.Background(), "voice_42")
	if err != nil {
		t.Fatalf("TranscriptFor: %v", err)
	}
	if record.Backend != "gpu_server" {
		t.Fatalf("saved transcript backend: %q", record.Backend)
	}
}

func TestProcessOneReusesSavedTranscript(t *testing.T) {
	input := pipeline.Input{ID: "voice_42", Name: "standup.m4a"}
	storage := &fakeStorage{inputs: []pipeline.Input{input}}
	transcriber := &fakeTranscriber{}
	analyzer := &fakeAnalyzer{}
	orchestrator, store, _ := newTestOrchestrator(t, storage, transcriber, analyzer)

	if err := store.SaveTranscript(context.Background(), runstate.TranscriptRecord{
		InputID:    "voice_42",
		Backend:    "modal",
		Model:      "large-v3",
		Language:   "en",
		Transcript: "recovered transcript",
	}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	report, err := orchestrator.ProcessOne(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected success, graph: %+v", report.Graph.Steps)
	}
	if !report.Reused {
		t.Fatal("expected transcript reuse")
	}
	if report.Backend != "modal" {
		t.Fatalf("backend should come from the saved transcript, got %q", report.Backend)
	}
	if transcriber.callCount() != 0 {
		t.Fatalf("transcriber must not be called on reuse, got %d calls", transcriber.callCount())
	}

	// Completion discards the saved transcript.
	if _, err := store.TranscriptFor(context.Background(), "voice_42"); !errors.Is(err, runstate.ErrNoTranscript) {
		t.Fatalf("expected transcript discarded after completion, got %v", err)
	}
}

func TestProcessOneTranscribeFailureCascades(t *testing.T) {
	input := pipeline.Input{ID: "voice_42", Name: "standup.m4a"}
	storage := &fakeStorage{inputs: []pipeline.Input{input}}
	transcriber := &fakeTranscriber{err: errors.New("all backends exhausted")}
	analyzer := &fakeAnalyzer{}
	orchestrator, store, _ := newTestOrchestrator(t, storage, transcriber, analyzer)

	report, err := orchestrator.ProcessOne(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if report.Success {
		t.Fatal("expected failure")
	}
	steps := report.Graph.Steps
	if steps[pipeline.StepTranscribe].Status != taskgraph.StatusFailed {
		t.Fatalf("transcribe: %v", steps[pipeline.StepTranscribe].Status)
	}
	if steps[pipeline.StepHandoff].Status != taskgraph.StatusSkipped || steps[pipeline.StepRelocate].Status != taskgraph.StatusSkipped {
		t.Fatal("handoff and relocate should cascade-skip")
	}
	if steps[pipeline.StepCleanup].Status != taskgraph.StatusCompleted {
		t.Fatalf("cleanup: %v", steps[pipeline.StepCleanup].Status)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer must not run, got %d calls", analyzer.calls)
	}
	completed, err := store.IsCompleted(context.Background(), "voice_42")
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if completed {
		t.Fatal("failed run must not complete the input")
	}
}

func TestProcessOneRejectsClaimedInput(t *testing.T) {
	input := pipeline.Input{ID: "voice_42", Name: "standup.m4a"}
	storage := &fakeStorage{inputs: []pipeline.Input{input}}
	orchestrator, store, _ := newTestOrchestrator(t, storage, &fakeTranscriber{}, &fakeAnalyzer{})

	if err := store.Claim(context.Background(), "voice_42", "standup.m4a", "other-run"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	_, err := orchestrator.ProcessOne(context.Background(), input)
	if !errors.Is(err, runstate.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got %v", err)
	}
}

func TestProcessBatchSkipsCompletedInputs(t *testing.T) {
	inputs := []pipeline.Input{
		{ID: "voice_1", Name: "a.m4a"},
		{ID: "voice_2", Name: "b.m4a"},
		{ID: "voice_3", Name: "c.m4a"},
	}
	storage := &fakeStorage{inputs: inputs}
	transcriber := &fakeTranscriber{}
	analyzer := &fakeAnalyzer{}
	orchestrator, store, _ := newTestOrchestrator(t, storage, transcriber, analyzer)

	// voice_2 already went through a full run.
	if err := store.Claim(context.Background(), "voice_2", "b.m4a", "old-run"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Release(context.Background(), "voice_2", true); err != nil {
		t.Fatalf("Release: %v", err)
	}

	batch, err := orchestrator.ProcessBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if batch.Claimable != 2 {
		t.Fatalf("claimable: %d", batch.Claimable)
	}
	if batch.Processed != 2 || batch.Failed != 0 {
		t.Fatalf("batch outcome: %+v", batch)
	}
	if len(batch.Reports) != 2 {
		t.Fatalf("reports: %d", len(batch.Reports))
	}
}

func TestProcessBatchHonorsMaxItems(t *testing.T) {
	inputs := []pipeline.Input{
		{ID: "voice_1", Name: "a.m4a"},
		{ID: "voice_2", Name: "b.m4a"},
		{ID: "voice_3", Name: "c.m4a"},
	}
	storage := &fakeStorage{inputs: inputs}
	orchestrator, store, _ := newTestOrchestrator(t, storage, &fakeTranscriber{}, &fakeAnalyzer{})

	batch, err := orchestrator.ProcessBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if batch.Claimable != 3 {
		t.Fatalf("claimable: %d", batch.Claimable)
	}
	if len(batch.Reports) != 1 || batch.Processed != 1 {
		t.Fatalf("cap not honored: %+v", batch)
	}

	// The two untouched inputs remain claimable for the next pass.
	claimable, err := store.ListClaimable(context.Background(), []runstate.Candidate{
		{ID: "voice_1"}, {ID: "voice_2"}, {ID: "voice_3"},
	})
	if err != nil {
		t.Fatalf("ListClaimable: %v", err)
	}
	if len(claimable) != 2 {
		t.Fatalf("expected 2 remaining, got %+v", claimable)
	}
}
