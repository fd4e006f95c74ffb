package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownBackends = map[string]struct{}{
	"gpu_server": {},
	"modal":      {},
	"local":      {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDrive() error {
	if strings.TrimSpace(c.Drive.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/murmur/config.toml"
		}
		return fmt.Errorf("drive.base_url is required. Edit %s (create with 'murmur config init')", defaultPath)
	}
	if strings.TrimSpace(c.Drive.FolderID) == "" {
		return errors.New("drive.folder_id must be set")
	}
	if strings.TrimSpace(c.Drive.ProcessedFolderID) == "" {
		return errors.New("drive.processed_folder_id must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if forced := c.Transcription.ForceBackend; forced != "" {
		if _, ok := knownBackends[forced]; !ok {
			return fmt.Errorf("transcription.force_backend: unknown backend %q (expected gpu_server, modal, or local)", forced)
		}
	}
	if c.Transcription.ModalEnabled && strings.TrimSpace(c.Transcription.ModalURL) == "" && c.Transcription.ForceBackend == "modal" {
		return errors.New("transcription.modal_url must be set when forcing the modal backend")
	}
	if c.Transcription.GPUServerURL == "" && !c.Transcription.ModalEnabled && !c.Transcription.LocalEnabled {
		return errors.New("transcription: no backend configured (set gpu_server_url, enable modal, or enable local)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"drive.request_timeout":                c.Drive.RequestTimeout,
		"notifications.request_timeout":        c.Notifications.RequestTimeout,
		"workflow.poll_interval":               c.Workflow.PollInterval,
		"workflow.max_batch_items":             c.Workflow.MaxBatchItems,
		"workflow.step_concurrency":            c.Workflow.StepConcurrency,
		"workflow.claim_stale_minutes":         c.Workflow.ClaimStaleMinutes,
		"workflow.download_timeout_seconds":    c.Workflow.DownloadTimeoutSecs,
		"workflow.transcribe_timeout_seconds":  c.Workflow.TranscribeTimeoutSecs,
		"workflow.handoff_timeout_seconds":     c.Workflow.HandoffTimeoutSecs,
		"state.completed_retention":            c.State.CompletedRetention,
		"transcription.probe_timeout_seconds":  c.Transcription.ProbeTimeoutSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
