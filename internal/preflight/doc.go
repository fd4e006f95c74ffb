// Package preflight verifies the environment before the daemon starts
// processing: directory permissions, Drive and analysis API reachability,
// and transcription backend availability. Checks report results instead of
// failing fast so the status command can show everything at once.
package preflight
