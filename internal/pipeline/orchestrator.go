package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/runstate"
	"murmur/internal/services"
	"murmur/internal/taskgraph"
)

const (
	handoffMaxRetries = 2
	handoffBaseDelay  = 2 * time.Second
	heartbeatInterval = 30 * time.Second
)

// Orchestrator drives the fixed step chain for watched-folder recordings.
type Orchestrator struct {
	cfg         *config.Config
	store       *runstate.Store
	storage     Storage
	transcriber Transcriber
	analyzer    Analyzer
	notifier    notifications.Service
	logger      *slog.Logger
}

// New wires an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	store *runstate.Store,
	storage Storage,
	transcriber Transcriber,
	analyzer Analyzer,
	notifier notifications.Service,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if store == nil {
		return nil, errors.New("pipeline: state store is required")
	}
	if storage == nil {
		return nil, errors.New("pipeline: storage is required")
	}
	if transcriber == nil {
		return nil, errors.New("pipeline: transcriber is required")
	}
	if analyzer == nil {
		return nil, errors.New("pipeline: analyzer is required")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		storage:     storage,
		transcriber: transcriber,
		analyzer:    analyzer,
		notifier:    notifier,
		logger:      logging.WithComponent(logger, "pipeline"),
	}, nil
}

// ProcessOne claims the input and runs it through the full step chain. The
// claim is always released: with completion recorded on full success, and
// back to claimable on any failure. A claim conflict returns
// runstate.ErrClaimConflict; it is an expected race, not an anomaly.
func (o *Orchestrator) ProcessOne(ctx context.Context, input Input) (*Report, error) {
	runID := uuid.NewString()

	claimed, err := o.store.TryClaim(ctx, input.ID, input.Name, runID)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", input.ID, err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", runstate.ErrClaimConflict, input.ID)
	}

	ctx = services.WithInputID(ctx, input.ID)
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	stopHeartbeat := o.startHeartbeat(ctx, input.ID)
	defer stopHeartbeat()

	report := &Report{
		RunID:   runID,
		Input:   input,
		Started: time.Now(),
	}

	o.logEvent(ctx, input, runID, "run_started", "", "", "")
	logger.Info("processing input", logging.String("input_name", input.Name))

	engine := taskgraph.NewEngine(o.cfg.Workflow.StepConcurrency, logger)
	rc := taskgraph.NewContext()
	if err := o.addSteps(engine, input, runID, report); err != nil {
		o.releaseClaim(ctx, input.ID, false)
		return nil, fmt.Errorf("build step graph: %w", err)
	}

	graph, runErr := engine.Run(ctx, rc)
	report.Graph = graph
	report.Finished = time.Now()
	report.Success = runErr == nil && graph != nil && graph.Succeeded()

	o.releaseClaim(ctx, input.ID, report.Success)
	o.finishRun(ctx, input, runID, report, graph)

	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

// finishRun emits events and notifications for a finished run.
func (o *Orchestrator) finishRun(ctx context.Context, input Input, runID string, report *Report, graph *taskgraph.Report) {
	logger := logging.WithContext(ctx, o.logger)

	if report.Success {
		o.logEvent(ctx, input, runID, "run_completed", "", report.Backend, report.NotesPath)
		logger.Info("input processed",
			logging.String("input_name", input.Name),
			logging.String(logging.FieldBackend, report.Backend),
			logging.Bool("transcript_reused", report.Reused),
			logging.Duration("duration", report.Duration()))
		if err := o.notifier.NotifyProcessingCompleted(ctx, input.Name, report.Backend, report.Duration()); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
		return
	}

	firstErr := errors.New("run cancelled")
	if graph != nil {
		if err := graph.FirstError(); err != nil {
			firstErr = err
		}
	}
	o.logEvent(ctx, input, runID, "run_failed", failedStep(graph), report.Backend, firstErr.Error())
	logger.Error("input processing failed",
		logging.String("input_name", input.Name),
		logging.Error(firstErr))

	// Transcription done but handoff not: the transcript is saved, so tell
	// the operator analysis will catch up on a later pass.
	if graph != nil && stepCompleted(graph, StepTranscribe) && !stepCompleted(graph, StepHandoff) {
		if err := o.notifier.NotifyTranscriptSaved(ctx, input.Name, report.Backend); err != nil {
			logger.Warn("deferred-analysis notification failed", logging.Error(err))
		}
		return
	}
	if err := o.notifier.NotifyError(ctx, firstErr, input.Name); err != nil {
		logger.Warn("error notification failed", logging.Error(err))
	}
}

// ProcessBatch lists claimable inputs and processes them one at a time,
// stopping at maxItems or when the context ends. maxItems <= 0 uses the
// configured cap.
func (o *Orchestrator) ProcessBatch(ctx context.Context, maxItems int) (*BatchReport, error) {
	if maxItems <= 0 {
		maxItems = o.cfg.Workflow.MaxBatchItems
	}

	batch := &BatchReport{Started: time.Now()}
	defer func() { batch.Finished = time.Now() }()

	inputs, err := o.storage.List(ctx)
	if err != nil {
		return batch, fmt.Errorf("list inputs: %w", err)
	}
	candidates := make([]runstate.Candidate, 0, len(inputs))
	byID := make(map[string]Input, len(inputs))
	for _, input := range inputs {
		candidates = append(candidates, runstate.Candidate{ID: input.ID, Name: input.Name})
		byID[input.ID] = input
	}

	claimable, err := o.store.ListClaimable(ctx, candidates)
	if err != nil {
		return batch, fmt.Errorf("filter claimable: %w", err)
	}
	batch.Claimable = len(claimable)
	if len(claimable) == 0 {
		return batch, nil
	}

	o.logger.Info("batch started",
		logging.Int("claimable", len(claimable)),
		logging.Int("max_items", maxItems))

	for _, candidate := range claimable {
		if len(batch.Reports) >= maxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		report, err := o.ProcessOne(ctx, byID[candidate.ID])
		if err != nil {
			if errors.Is(err, runstate.ErrClaimConflict) {
				// Another worker got there first.
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if report != nil {
					batch.Reports = append(batch.Reports, report)
					batch.Failed++
				}
				return batch, err
			}
			o.logger.Error("processing error",
				logging.String(logging.FieldInputID, candidate.ID),
				logging.Error(err))
			batch.Failed++
			continue
		}
		batch.Reports = append(batch.Reports, report)
		if report.Success {
			batch.Processed++
		} else {
			batch.Failed++
		}
	}

	batch.Finished = time.Now()
	if err := o.notifier.NotifyBatchCompleted(ctx, batch.Processed, batch.Failed, batch.Duration()); err != nil {
		o.logger.Warn("batch notification failed", logging.Error(err))
	}
	return batch, nil
}

// startHeartbeat refreshes the claim's liveness timestamp until the returned
// stop function is called. Heartbeats use the background context so a
// cancelled run still heartbeats until its claim is released.
func (o *Orchestrator) startHeartbeat(ctx context.Context, inputID string) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				beatCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := o.store.Heartbeat(beatCtx, inputID); err != nil {
					logging.WithContext(ctx, o.logger).Warn("heartbeat failed", logging.Error(err))
				}
				cancel()
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// releaseClaim releases with a background context so cancellation cannot
// strand a claim until the stale reaper finds it.
func (o *Orchestrator) releaseClaim(ctx context.Context, inputID string, completed bool) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.Release(releaseCtx, inputID, completed); err != nil {
		logging.WithContext(ctx, o.logger).Error("release claim failed",
			logging.String(logging.FieldInputID, inputID),
			logging.Error(err))
	}
}

// logEvent records a pipeline event; failures are logged, never propagated.
func (o *Orchestrator) logEvent(ctx context.Context, input Input, runID, eventType, step, backend, detail string) {
	event := runstate.Event{
		InputID:   input.ID,
		RunID:     runID,
		EventType: eventType,
		Step:      step,
		Backend:   backend,
		Detail:    detail,
	}
	if err := o.store.LogEvent(ctx, event); err != nil {
		logging.WithContext(ctx, o.logger).Warn("event log write failed",
			logging.String(logging.FieldEventType, eventType),
			logging.Error(err))
	}
}

func stepCompleted(graph *taskgraph.Report, id string) bool {
	result, ok := graph.Steps[id]
	return ok && result.Status == taskgraph.StatusCompleted
}

func failedStep(graph *taskgraph.Report) string {
	if graph == nil {
		return ""
	}
	for _, id := range []string{StepDownload, StepTranscribe, StepHandoff, StepRelocate, StepCleanup} {
		if result, ok := graph.Steps[id]; ok && result.Status == taskgraph.StatusFailed {
			return id
		}
	}
	return ""
}
