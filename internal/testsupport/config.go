package testsupport

import (
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.TranscriptsDir = filepath.Join(base, "transcripts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Drive.Token = "test-token"
	cfg.Drive.FolderID = "watched-folder"
	cfg.Drive.ProcessedFolderID = "processed-folder"
	cfg.Analysis.APIKey = "test-key"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithForcedBackend pins the router to one backend on the test config.
func WithForcedBackend(name string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcription.ForceBackend = name
	}
}

// WithRetention overrides the completed-input retention cap.
func WithRetention(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.State.CompletedRetention = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
