package taskgraph

import (
	"context"
	"time"
)

// RunFunc is a step body. The returned value is stored in the run Context
// under the step's identifier for downstream steps to read.
type RunFunc func(ctx context.Context, rc *Context) (any, error)

// Step declares one unit of work in the graph.
//
// DependsOn lists steps that must complete successfully before this step
// runs; a failure or skip among them skips this step. WaitFor lists steps
// this step must merely wait out: it runs once they are terminal, whatever
// their outcome. WaitFor is how cleanup-style steps order themselves after
// optional work without inheriting its failures.
type Step struct {
	ID        string
	DependsOn []string
	WaitFor   []string

	// Timeout bounds a single execution attempt. Zero means no deadline
	// beyond the run context.
	Timeout time.Duration

	// Retries is the number of additional attempts after a failure.
	// Backoff is the base delay of the retry schedule; zero retries
	// immediately.
	Retries int
	Backoff time.Duration

	Run RunFunc
}
