package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir     string `toml:"staging_dir"`
	TranscriptsDir string `toml:"transcripts_dir"`
	LogDir         string `toml:"log_dir"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
}

// Drive contains configuration for the watched storage folder.
type Drive struct {
	BaseURL           string `toml:"base_url"`
	Token             string `toml:"token"`
	FolderID          string `toml:"folder_id"`
	ProcessedFolderID string `toml:"processed_folder_id"`
	RequestTimeout    int    `toml:"request_timeout"`
}

// Transcription contains configuration for the backend router and the
// individual transcription backends.
type Transcription struct {
	Model               string `toml:"model"`
	Language            string `toml:"language"`
	Diarization         bool   `toml:"diarization"`
	ForceBackend        string `toml:"force_backend"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`

	GPUServerURL string `toml:"gpu_server_url"`

	ModalEnabled bool   `toml:"modal_enabled"`
	ModalURL     string `toml:"modal_url"`
	ModalToken   string `toml:"modal_token"`

	LocalEnabled bool `toml:"local_enabled"`
}

// Analysis contains connection settings for the downstream analysis service.
type Analysis struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and batch behavior.
type Workflow struct {
	PollInterval          int `toml:"poll_interval"`
	MaxBatchItems         int `toml:"max_batch_items"`
	StepConcurrency       int `toml:"step_concurrency"`
	ClaimStaleMinutes     int `toml:"claim_stale_minutes"`
	DownloadTimeoutSecs   int `toml:"download_timeout_seconds"`
	TranscribeTimeoutSecs int `toml:"transcribe_timeout_seconds"`
	HandoffTimeoutSecs    int `toml:"handoff_timeout_seconds"`
}

// State contains configuration for the run state database.
type State struct {
	CompletedRetention int `toml:"completed_retention"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for murmur.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Drive: watched storage folder and credentials
//   - Transcription: backend router and backend endpoints
//   - Analysis: downstream analysis service connection
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals, batch caps, and step timeouts
//   - State: run state retention
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Drive         Drive         `toml:"drive"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	State         State         `toml:"state"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/murmur/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. It reports the resolved
// path and whether a file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = defaultPath
	}

	expanded, err := expandPath(candidate)
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.TranscriptsDir, c.Paths.LogDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(expanded); err == nil {
			return "", fmt.Errorf("config file already exists at %s", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
