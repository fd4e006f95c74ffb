// Package runstate persists pipeline processing state in SQLite.
//
// The store answers three questions the daemon asks on every poll: which
// inputs were already fully processed, which are being worked on right now,
// and which have a transcript saved from an earlier attempt whose analysis
// handoff failed. Claims are atomic at the database level, so concurrent
// workers never process the same input twice, and completed-input records are
// capped with oldest-first eviction.
package runstate
