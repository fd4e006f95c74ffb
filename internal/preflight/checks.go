package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"murmur/internal/config"
	"murmur/internal/router"
	"murmur/internal/services/analysis"
	"murmur/internal/services/drive"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDrive verifies the Drive token can read the watched folder.
func CheckDrive(ctx context.Context, cfg *config.Config) Result {
	const name = "Drive"
	if cfg.Drive.Token == "" {
		return Result{Name: name, Detail: "token missing"}
	}
	if cfg.Drive.FolderID == "" {
		return Result{Name: name, Detail: "watched folder id missing"}
	}

	client, err := drive.New(drive.Config{
		BaseURL:           cfg.Drive.BaseURL,
		Token:             cfg.Drive.Token,
		FolderID:          cfg.Drive.FolderID,
		ProcessedFolderID: cfg.Drive.ProcessedFolderID,
		Timeout:           time.Duration(cfg.Drive.RequestTimeout) * time.Second,
	})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "watched folder reachable"}
}

// CheckAnalysis verifies that the analysis API is reachable and the key is
// valid. One attempt, no retries.
func CheckAnalysis(ctx context.Context, cfg *config.Config) Result {
	const name = "Analysis API"
	if cfg.Analysis.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := analysis.NewClient(analysis.Config{
		APIKey:  cfg.Analysis.APIKey,
		BaseURL: cfg.Analysis.BaseURL,
		Model:   cfg.Analysis.Model,
	})
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckBackends probes every registered transcription backend. Unavailable
// backends are reported but only a fully empty roster is a real problem, so
// callers decide how hard to fail.
func CheckBackends(ctx context.Context, backends *router.Router) []Result {
	statuses := backends.Status(ctx)
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		name := fmt.Sprintf("Backend %s", status.Name)
		if status.Forced {
			name += " (forced)"
		}
		if status.Available {
			results = append(results, Result{Name: name, Passed: true, Detail: "available"})
			continue
		}
		results = append(results, Result{Name: name, Detail: status.Detail})
	}
	return results
}
