package preflight

import (
	"context"

	"murmur/internal/config"
	"murmur/internal/router"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is configured. The
// backend router is optional; pass nil to skip backend probes.
func RunAll(ctx context.Context, cfg *config.Config, backends *router.Router) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results,
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Transcripts directory", cfg.Paths.TranscriptsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	results = append(results, CheckDrive(ctx, cfg))
	results = append(results, CheckAnalysis(ctx, cfg))

	if backends != nil {
		results = append(results, CheckBackends(ctx, backends)...)
	}

	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
