// Package analysis turns a finished transcript into structured meeting
// notes via an OpenAI-compatible chat completion API.
//
// The client is deliberately single-shot: the pipeline owns retry policy for
// the analysis handoff, so a request here either succeeds or reports exactly
// one failure.
package analysis
