// Package router selects a transcription backend and fails over between
// them.
//
// Backends are tried in registration order. A backend that reports itself
// unavailable is skipped; a backend that accepts work and then fails is
// recorded as a failure; either way the router moves to the next backend.
// The distinction survives into the exhaustion error so operators can tell
// "GPU server was down" apart from "GPU server rejected the file". A forced
// backend disables failover entirely.
package router
