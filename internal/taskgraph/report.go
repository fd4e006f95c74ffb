package taskgraph

import "time"

// StepResult is the terminal record of one step within a run.
type StepResult struct {
	ID       string
	Status   Status
	Attempts int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the step spent executing, zero for skipped steps.
func (r StepResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Report summarizes a completed run. Every registered step appears exactly
// once in Steps.
type Report struct {
	Steps    map[string]StepResult
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether every step completed successfully.
func (r *Report) Succeeded() bool {
	for _, result := range r.Steps {
		if result.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Failed returns the results of failed steps in no particular order.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, result := range r.Steps {
		if result.Status == StatusFailed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Skipped returns the results of skipped steps in no particular order.
func (r *Report) Skipped() []StepResult {
	var skipped []StepResult
	for _, result := range r.Steps {
		if result.Status == StatusSkipped {
			skipped = append(skipped, result)
		}
	}
	return skipped
}

// FirstError returns the failure that occurred earliest in the run, nil when
// no step failed.
func (r *Report) FirstError() error {
	var (
		earliest time.Time
		firstErr error
	)
	for _, result := range r.Steps {
		if result.Status != StatusFailed || result.Err == nil {
			continue
		}
		if firstErr == nil || result.Started.Before(earliest) {
			earliest = result.Started
			firstErr = result.Err
		}
	}
	return firstErr
}
