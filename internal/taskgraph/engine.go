package taskgraph

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"murmur/internal/logging"
	"murmur/internal/retry"
)

// Engine holds a validated step graph and executes it.
type Engine struct {
	steps       map[string]*Step
	order       []string
	concurrency int
	logger      *slog.Logger
}

// NewEngine returns an engine that runs at most concurrency steps at a time.
// Values below one are treated as one.
func NewEngine(concurrency int, logger *slog.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		steps:       make(map[string]*Step),
		concurrency: concurrency,
		logger:      logging.WithComponent(logger, "taskgraph"),
	}
}

// AddStep registers a step. It returns a *DuplicateIDError when the
// identifier is taken and a *CycleError when the step's edges close a cycle
// among the steps registered so far. Dependencies on steps added later are
// allowed; they are checked in Run.
func (e *Engine) AddStep(step Step) error {
	if step.ID == "" {
		return errors.New("step id must not be empty")
	}
	if step.Run == nil {
		return errors.New("step run function must not be nil")
	}
	if _, exists := e.steps[step.ID]; exists {
		return &DuplicateIDError{ID: step.ID}
	}
	e.steps[step.ID] = &step
	e.order = append(e.order, step.ID)
	if cycle := e.findCycle(); cycle != nil {
		delete(e.steps, step.ID)
		e.order = e.order[:len(e.order)-1]
		return &CycleError{Steps: cycle}
	}
	return nil
}

// Run executes every registered step to a terminal status. It returns an
// error only for graph validation problems or when the run context is
// cancelled before all steps finish; step failures are reported through the
// Report, not the error.
func (e *Engine) Run(ctx context.Context, rc *Context) (*Report, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if rc == nil {
		rc = NewContext()
	}

	report := &Report{
		Steps:   make(map[string]StepResult, len(e.steps)),
		Started: time.Now(),
	}
	status := make(map[string]Status, len(e.steps))
	for id := range e.steps {
		status[id] = StatusPending
	}

	done := make(chan StepResult)
	running := 0

	record := func(result StepResult) {
		status[result.ID] = result.Status
		report.Steps[result.ID] = result
	}

	for {
		// Scheduling sweep. Skips cascade within a single sweep, so
		// loop until no step changes state.
		for changed := true; changed; {
			changed = false
			for _, id := range e.order {
				if status[id] != StatusPending {
					continue
				}
				step := e.steps[id]
				if cause := e.skipCause(step, status); cause != "" {
					record(StepResult{
						ID:     id,
						Status: StatusSkipped,
						Err:    &skipError{id: id, cause: cause},
					})
					e.logger.Info("step skipped",
						logging.String(logging.FieldStep, id),
						logging.String("cause", cause))
					changed = true
					continue
				}
				if running >= e.concurrency || !e.ready(step, status) {
					continue
				}
				status[id] = StatusRunning
				running++
				changed = true
				go func(step *Step) {
					done <- e.runStep(ctx, step, rc)
				}(step)
			}
		}

		if running == 0 {
			if allTerminal(status) {
				break
			}
			// Unreachable for a validated graph.
			return nil, errors.New("no runnable steps remain")
		}

		result := <-done
		running--
		record(result)
	}

	report.Finished = time.Now()
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) runStep(ctx context.Context, step *Step, rc *Context) StepResult {
	result := StepResult{
		ID:      step.ID,
		Started: time.Now(),
	}
	e.logger.Debug("step started", logging.String(logging.FieldStep, step.ID))

	attempts := 0
	err := retry.DoWithOptions(ctx, retry.Options{
		MaxAttempts: step.Retries + 1,
		BaseDelay:   step.Backoff,
	}, func(ctx context.Context) error {
		attempts++
		return e.runOnce(ctx, step, rc)
	})

	result.Attempts = attempts
	result.Finished = time.Now()
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		e.logger.Error("step failed",
			logging.String(logging.FieldStep, step.ID),
			logging.Int("attempts", attempts),
			logging.Error(err))
		return result
	}
	result.Status = StatusCompleted
	e.logger.Debug("step completed",
		logging.String(logging.FieldStep, step.ID),
		logging.Duration("duration", result.Duration()))
	return result
}

func (e *Engine) runOnce(ctx context.Context, step *Step, rc *Context) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	value, err := step.Run(runCtx, rc)
	if err != nil {
		if step.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &StepTimeoutError{ID: step.ID, Timeout: step.Timeout}
		}
		return err
	}
	if value != nil {
		rc.Set(step.ID, value)
	}
	return nil
}

// ready reports whether every dependency completed and every wait-for target
// is terminal.
func (e *Engine) ready(step *Step, status map[string]Status) bool {
	for _, dep := range step.DependsOn {
		if status[dep] != StatusCompleted {
			return false
		}
	}
	for _, dep := range step.WaitFor {
		if !status[dep].Terminal() {
			return false
		}
	}
	return true
}

// skipCause returns the identifier of a failed or skipped dependency, empty
// when the step is still eligible to run.
func (e *Engine) skipCause(step *Step, status map[string]Status) string {
	for _, dep := range step.DependsOn {
		switch status[dep] {
		case StatusFailed, StatusSkipped:
			return dep
		}
	}
	return ""
}

func allTerminal(status map[string]Status) bool {
	for _, s := range status {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

// validate checks that every referenced dependency exists and that the full
// graph is acyclic.
func (e *Engine) validate() error {
	for _, id := range e.order {
		step := e.steps[id]
		for _, dep := range append(append([]string{}, step.DependsOn...), step.WaitFor...) {
			if _, ok := e.steps[dep]; !ok {
				return &UnknownDependencyError{ID: id, DependsOn: dep}
			}
		}
	}
	if cycle := e.findCycle(); cycle != nil {
		return &CycleError{Steps: cycle}
	}
	return nil
}

// findCycle runs a depth-first search over the edges among registered steps
// and returns one cycle in dependency order, nil when the graph is acyclic.
func (e *Engine) findCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(e.steps))
	var stack []string
	var cycle []string

	ids := make([]string, len(e.order))
	copy(ids, e.order)
	sort.Strings(ids)

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		step := e.steps[id]
		for _, dep := range append(append([]string{}, step.DependsOn...), step.WaitFor...) {
			if _, ok := e.steps[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return false
	}

	for _, id := range ids {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

type skipError struct {
	id    string
	cause string
}

func (e *skipError) Error() string {
	return "step " + e.id + " skipped: dependency " + e.cause + " did not complete"
}
