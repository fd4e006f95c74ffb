package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/language"
	"murmur/internal/logging"
	"murmur/internal/router"
	"murmur/internal/runstate"
	"murmur/internal/services"
	"murmur/internal/taskgraph"
)

func (o *Orchestrator) addSteps(engine *taskgraph.Engine, input Input, runID string, report *Report) error {
	steps := []taskgraph.Step{
		{
			ID:      StepDownload,
			Timeout: secondsOrZero(o.cfg.Workflow.DownloadTimeoutSecs),
			Run:     o.downloadStep(input),
		},
		{
			ID:        StepTranscribe,
			DependsOn: []string{StepDownload},
			Timeout:   secondsOrZero(o.cfg.Workflow.TranscribeTimeoutSecs),
			Run:       o.transcribeStep(input, runID, report),
		},
		{
			ID:        StepHandoff,
			DependsOn: []string{StepTranscribe},
			Timeout:   secondsOrZero(o.cfg.Workflow.HandoffTimeoutSecs),
			Retries:   handoffMaxRetries,
			Backoff:   handoffBaseDelay,
			Run:       o.handoffStep(input, runID, report),
		},
		{
			ID:        StepRelocate,
			DependsOn: []string{StepHandoff},
			Run:       o.relocateStep(input, runID, report),
		},
		{
			// Staged audio is removed whenever the download happened,
			// however the rest of the run went. WaitFor orders cleanup
			// after relocate without inheriting its failures.
			ID:        StepCleanup,
			DependsOn: []string{StepDownload},
			WaitFor:   []string{StepRelocate},
			Run:       o.cleanupStep(input),
		},
	}
	for _, step := range steps {
		if err := engine.AddStep(step); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) downloadStep(input Input) taskgraph.RunFunc {
	return func(ctx context.Context, _ *taskgraph.Context) (any, error) {
		ctx = services.WithStep(ctx, StepDownload)
		destPath := o.stagingPath(input)
		if err := o.storage.Download(ctx, input, destPath); err != nil {
			return nil, err
		}
		o.logEvent(ctx, input, runIDFromContext(ctx), "downloaded", StepDownload, "", destPath)
		return destPath, nil
	}
}

func (o *Orchestrator) transcribeStep(input Input, runID string, report *Report) taskgraph.RunFunc {
	return func(ctx context.Context, rc *taskgraph.Context) (any, error) {
		ctx = services.WithStep(ctx, StepTranscribe)
		logger := logging.WithContext(ctx, o.logger)

		// A transcript saved by an earlier run means the handoff failed
		// last time; skip straight to analysis instead of paying for a
		// second transcription.
		saved, err := o.store.TranscriptFor(ctx, input.ID)
		switch {
		case err == nil:
			result := savedResult(saved)
			report.Backend = saved.Backend
			report.Reused = true
			o.logEvent(ctx, input, runID, "transcript_reused", StepTranscribe, saved.Backend, "")
			logger.Info("reusing saved transcript",
				logging.String(logging.FieldBackend, saved.Backend))
			if path, err := o.writeTranscriptFile(input, result.Text); err != nil {
				logger.Warn("transcript file write failed", logging.Error(err))
			} else {
				report.TranscriptPath = path
			}
			return result, nil
		case !errors.Is(err, runstate.ErrNoTranscript):
			return nil, err
		}

		audioPath, ok := rc.GetString(StepDownload)
		if !ok {
			return nil, errors.New("transcribe: no downloaded file in context")
		}

		result, err := o.transcriber.Transcribe(ctx, router.Request{
			AudioPath: audioPath,
			Model:     o.cfg.Transcription.Model,
			Language:  language.ToISO2(o.cfg.Transcription.Language),
			Diarize:   o.cfg.Transcription.Diarization,
		})
		if err != nil {
			return nil, err
		}
		report.Backend = result.Backend

		// Persist before the handoff so a handoff failure never costs a
		// re-transcription. A failed save is survivable; the run itself
		// can still finish.
		record := runstate.TranscriptRecord{
			InputID:    input.ID,
			Backend:    result.Backend,
			Model:      result.Model,
			Language:   result.Language,
			Transcript: result.Text,
		}
		if len(result.Segments) > 0 {
			if payload, err := json.Marshal(result.Segments); err == nil {
				record.SegmentsJSON = string(payload)
			}
		}
		if err := o.store.SaveTranscript(ctx, record); err != nil {
			logger.Warn("transcript save failed", logging.Error(err))
		}
		o.logEvent(ctx, input, runID, "transcribed", StepTranscribe, result.Backend,
			fmt.Sprintf("language=%s elapsed=%s", result.Language, result.Elapsed.Round(time.Millisecond)))

		if path, err := o.writeTranscriptFile(input, result.Text); err != nil {
			logger.Warn("transcript file write failed", logging.Error(err))
		} else {
			report.TranscriptPath = path
		}
		return result, nil
	}
}

func (o *Orchestrator) handoffStep(input Input, runID string, report *Report) taskgraph.RunFunc {
	return func(ctx context.Context, rc *taskgraph.Context) (any, error) {
		ctx = services.WithStep(ctx, StepHandoff)

		value, ok := rc.Get(StepTranscribe)
		if !ok {
			return nil, errors.New("handoff: no transcription in context")
		}
		result, ok := value.(*router.Result)
		if !ok {
			return nil, fmt.Errorf("handoff: unexpected transcription type %T", value)
		}

		notes, err := o.analyzer.Analyze(ctx, result.Text, input.Name, input.Recorded)
		if err != nil {
			return nil, err
		}

		notesPath := filepath.Join(o.cfg.Paths.TranscriptsDir, fileStem(input.Name)+".notes.md")
		if err := os.WriteFile(notesPath, []byte(notes), 0o644); err != nil {
			return nil, fmt.Errorf("write notes file: %w", err)
		}
		report.NotesPath = notesPath
		o.logEvent(ctx, input, runID, "analyzed", StepHandoff, "", notesPath)
		return notesPath, nil
	}
}

func (o *Orchestrator) relocateStep(input Input, runID string, report *Report) taskgraph.RunFunc {
	return func(ctx context.Context, _ *taskgraph.Context) (any, error) {
		ctx = services.WithStep(ctx, StepRelocate)
		newName := processedName(input)
		if err := o.storage.Relocate(ctx, input, newName); err != nil {
			return nil, err
		}
		report.ProcessedName = newName
		o.logEvent(ctx, input, runID, "relocated", StepRelocate, "", newName)
		return newName, nil
	}
}

func (o *Orchestrator) cleanupStep(input Input) taskgraph.RunFunc {
	return func(ctx context.Context, rc *taskgraph.Context) (any, error) {
		ctx = services.WithStep(ctx, StepCleanup)
		audioPath, ok := rc.GetString(StepDownload)
		if !ok {
			return nil, errors.New("cleanup: no downloaded file in context")
		}
		if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove staged audio: %w", err)
		}
		return nil, nil
	}
}

// writeTranscriptFile writes the plain-text transcript next to the notes.
func (o *Orchestrator) writeTranscriptFile(input Input, text string) (string, error) {
	path := filepath.Join(o.cfg.Paths.TranscriptsDir, fileStem(input.Name)+".transcript.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (o *Orchestrator) stagingPath(input Input) string {
	return filepath.Join(o.cfg.Paths.StagingDir, sanitizeFileName(input.ID+"_"+input.Name))
}

// processedName prefixes the original name with the recording date, so the
// processed folder sorts chronologically.
func processedName(input Input) string {
	recorded := input.Recorded
	if recorded.IsZero() {
		recorded = time.Now()
	}
	return recorded.Format("2006-01-02") + " - " + input.Name
}

// fileStem strips the extension and sanitizes the remainder for local paths.
func fileStem(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return sanitizeFileName(stem)
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")
	sanitized := strings.TrimSpace(replacer.Replace(name))
	if sanitized == "" {
		return "recording"
	}
	return sanitized
}

func savedResult(record *runstate.TranscriptRecord) *router.Result {
	result := &router.Result{
		Text:     record.Transcript,
		Language: record.Language,
		Backend:  record.Backend,
		Model:    record.Model,
	}
	if record.SegmentsJSON != "" {
		var segments []router.Segment
		if err := json.Unmarshal([]byte(record.SegmentsJSON), &segments); err == nil {
			result.Segments = segments
		}
	}
	return result
}

func secondsOrZero(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func runIDFromContext(ctx context.Context) string {
	if id, ok := services.RunIDFromContext(ctx); ok {
		return id
	}
	return ""
}
