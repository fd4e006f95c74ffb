package taskgraph

import (
	"fmt"
	"strings"
	"time"
)

// DuplicateIDError reports a second registration of a step identifier.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("step %q already registered", e.ID)
}

// UnknownDependencyError reports a dependency on a step that was never added.
type UnknownDependencyError struct {
	ID        string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.ID, e.DependsOn)
}

// CycleError reports a dependency cycle. Steps holds one complete cycle in
// dependency order.
type CycleError struct {
	Steps []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Steps, " -> "))
}

// StepTimeoutError reports that a step exceeded its deadline. The engine
// records it as the step's failure cause.
type StepTimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s", e.ID, e.Timeout)
}
