// Package taskgraph executes a set of steps with declared dependencies.
//
// Steps are added to an Engine up front; Run drives every step to a terminal
// status, executing independent steps concurrently under a configurable cap.
// A step runs only after all of its dependencies succeeded; a failed or
// skipped dependency cascades a skip to its dependents. Step errors, including
// timeouts, are captured in the run report and never abort sibling branches.
//
// Cycles and duplicate identifiers are rejected at construction time, before
// any step executes. Results flow between steps through a shared Context with
// single-writer-per-key discipline: the engine records each step's result
// under its own identifier.
package taskgraph
