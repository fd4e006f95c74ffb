// Package daemon runs the background processing loop: poll the watched
// folder on an interval, reclaim stale claims, and hand each batch to the
// pipeline orchestrator. A file lock enforces single-instance execution, and
// a small HTTP API exposes health, status, and on-demand processing triggers
// (including the Drive change webhook, which just wakes the poll loop early).
package daemon
