package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/config"
	"murmur/internal/preflight"
	"murmur/internal/router"
	"murmur/internal/testsupport"
)

// offlineConfig blanks the credentials so the Drive and analysis checks fail
// fast instead of dialing out.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, func(cfg *config.Config) {
		cfg.Drive.Token = ""
		cfg.Analysis.APIKey = ""
	})
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Staging directory", dir)
	if !result.Passed {
		t.Fatalf("existing directory should pass: %+v", result)
	}

	result = preflight.CheckDirectoryAccess("Staging directory", filepath.Join(dir, "missing"))
	if result.Passed || !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("missing directory: %+v", result)
	}

	filePath := filepath.Join(dir, "not-a-dir")
	testsupport.WriteFile(t, filePath, "plain file")
	result = preflight.CheckDirectoryAccess("Staging directory", filePath)
	if result.Passed || !strings.Contains(result.Detail, "not a directory") {
		t.Fatalf("file path: %+v", result)
	}
}

func TestCheckDriveRequiresCredentials(t *testing.T) {
	cfg := offlineConfig(t)

	result := preflight.CheckDrive(context.Background(), cfg)
	if result.Passed || !strings.Contains(result.Detail, "token missing") {
		t.Fatalf("missing token: %+v", result)
	}

	cfg.Drive.Token = "test-token"
	cfg.Drive.FolderID = ""
	result = preflight.CheckDrive(context.Background(), cfg)
	if result.Passed || !strings.Contains(result.Detail, "folder id missing") {
		t.Fatalf("missing folder: %+v", result)
	}
}

func TestCheckDriveHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "watched-folder"}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, func(cfg *config.Config) {
		cfg.Drive.BaseURL = server.URL
	})

	result := preflight.CheckDrive(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("reachable folder should pass: %+v", result)
	}
}

func TestCheckAnalysisRequiresKey(t *testing.T) {
	cfg := offlineConfig(t)
	result := preflight.CheckAnalysis(context.Background(), cfg)
	if result.Passed || !strings.Contains(result.Detail, "API key missing") {
		t.Fatalf("missing key: %+v", result)
	}
}

func TestRunAllSkipsBackendProbesWithoutRouter(t *testing.T) {
	cfg := offlineConfig(t)

	results := preflight.RunAll(context.Background(), cfg, nil)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	for _, result := range results {
		if strings.HasPrefix(result.Name, "Backend") {
			t.Fatalf("backend probe ran without a router: %+v", result)
		}
	}
	if preflight.Passed(results) {
		t.Fatal("results with failing checks should not pass")
	}
}

func TestRunAllIncludesBackendProbes(t *testing.T) {
	cfg := offlineConfig(t)
	backends, err := router.New([]router.Backend{availableBackend{}}, router.Options{ForceBackend: "local"})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	results := preflight.RunAll(context.Background(), cfg, backends)
	var probe *preflight.Result
	for i := range results {
		if strings.HasPrefix(results[i].Name, "Backend") {
			probe = &results[i]
		}
	}
	if probe == nil {
		t.Fatalf("no backend probe in results: %+v", results)
	}
	if probe.Name != "Backend local (forced)" || !probe.Passed {
		t.Fatalf("backend probe: %+v", probe)
	}
}

func TestPassed(t *testing.T) {
	all := []preflight.Result{{Name: "a", Passed: true}, {Name: "b", Passed: true}}
	if !preflight.Passed(all) {
		t.Fatal("all passing results should pass")
	}
	all[1].Passed = false
	if preflight.Passed(all) {
		t.Fatal("one failing result should fail")
	}
	if !preflight.Passed(nil) {
		t.Fatal("no checks means nothing failed")
	}
}

type availableBackend struct{}

func (availableBackend) Name() string                    { return "local" }
func (availableBackend) Available(context.Context) error { return nil }
func (availableBackend) Transcribe(context.Context, router.Request) (*router.Result, error) {
	return &router.Result{}, nil
}
