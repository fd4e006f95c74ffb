package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[drive]
base_url = "https://www.googleapis.com/drive/v3/"
token = "drive-token"
folder_id = "inbox"
processed_folder_id = "done"
`

func TestLoadAppliesDefaultsAndNormalizes(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolvedPath, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolvedPath != path {
		t.Fatalf("resolution: exists=%v path=%q", exists, resolvedPath)
	}

	// Trailing slash trimmed during normalization.
	if cfg.Drive.BaseURL != "https://www.googleapis.com/drive/v3" {
		t.Fatalf("base url: %q", cfg.Drive.BaseURL)
	}
	if cfg.Transcription.Model != "large-v3" {
		t.Fatalf("model default: %q", cfg.Transcription.Model)
	}
	if cfg.Workflow.PollInterval != 900 || cfg.Workflow.StepConcurrency != 2 {
		t.Fatalf("workflow defaults: %+v", cfg.Workflow)
	}
	if cfg.State.CompletedRetention != 500 {
		t.Fatalf("retention default: %d", cfg.State.CompletedRetention)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults: %+v", cfg.Logging)
	}
	if strings.HasPrefix(cfg.Paths.StagingDir, "~") {
		t.Fatalf("staging dir not expanded: %q", cfg.Paths.StagingDir)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[transcription]
model = "medium"
force_backend = "LOCAL"

[workflow]
poll_interval = 60
max_batch_items = 3

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transcription.Model != "medium" {
		t.Fatalf("model: %q", cfg.Transcription.Model)
	}
	if cfg.Transcription.ForceBackend != "local" {
		t.Fatalf("force backend should lower-case: %q", cfg.Transcription.ForceBackend)
	}
	if cfg.Workflow.PollInterval != 60 || cfg.Workflow.MaxBatchItems != 3 {
		t.Fatalf("workflow overrides: %+v", cfg.Workflow)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging normalization: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownForcedBackend(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[transcription]
force_backend = "mystery"
`)
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "force_backend") {
		t.Fatalf("expected force_backend error, got %v", err)
	}
}

func TestLoadRequiresDriveSettings(t *testing.T) {
	path := writeConfig(t, `
[drive]
base_url = "https://www.googleapis.com/drive/v3"
folder_id = "inbox"
`)
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "processed_folder_id") {
		t.Fatalf("expected processed_folder_id error, got %v", err)
	}
}

func TestLoadRequiresSomeBackend(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[transcription]
modal_enabled = false
local_enabled = false
`)
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "no backend configured") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestLoadRejectsBadLogging(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[logging]
format = "xml"
`)
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got %v", err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("MURMUR_DRIVE_TOKEN", "env-token")
	t.Setenv("MURMUR_TRANSCRIPTION_BACKEND", "Modal")
	t.Setenv("MURMUR_ANALYSIS_API_KEY", "env-key")

	path := writeConfig(t, `
[drive]
base_url = "https://www.googleapis.com/drive/v3"
folder_id = "inbox"
processed_folder_id = "done"

[transcription]
modal_url = "https://example.modal.run"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Drive.Token != "env-token" {
		t.Fatalf("drive token: %q", cfg.Drive.Token)
	}
	if cfg.Transcription.ForceBackend != "modal" {
		t.Fatalf("force backend: %q", cfg.Transcription.ForceBackend)
	}
	if cfg.Analysis.APIKey != "env-key" {
		t.Fatalf("analysis key: %q", cfg.Analysis.APIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Defaults alone fail validation: drive.base_url is never defaulted.
	path := filepath.Join(t.TempDir(), "absent.toml")
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "drive.base_url") {
		t.Fatalf("expected drive.base_url error, got %v", err)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	written, err := WriteSample(path, false)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	content, err := os.ReadFile(written)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(content), "[drive]") {
		t.Fatalf("sample missing drive section:\n%s", content)
	}

	if _, err := WriteSample(path, false); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := WriteSample(path, true); err != nil {
		t.Fatalf("WriteSample force: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.TranscriptsDir = filepath.Join(base, "transcripts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.TranscriptsDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
	}
}
