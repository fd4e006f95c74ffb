package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDrive()
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TranscriptsDir) == "" {
		c.Paths.TranscriptsDir = defaultTranscriptsDir
	}
	if c.Paths.TranscriptsDir, err = expandPath(c.Paths.TranscriptsDir); err != nil {
		return fmt.Errorf("paths.transcripts_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDrive() {
	c.Drive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Drive.BaseURL), "/")
	c.Drive.Token = strings.TrimSpace(c.Drive.Token)
	c.Drive.FolderID = strings.TrimSpace(c.Drive.FolderID)
	c.Drive.ProcessedFolderID = strings.TrimSpace(c.Drive.ProcessedFolderID)
	if c.Drive.Token == "" {
		if value, ok := os.LookupEnv("MURMUR_DRIVE_TOKEN"); ok {
			c.Drive.Token = strings.TrimSpace(value)
		}
	}
	if c.Drive.RequestTimeout <= 0 {
		c.Drive.RequestTimeout = defaultDriveRequestTimeout
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultModel
	}
	c.Transcription.ForceBackend = strings.ToLower(strings.TrimSpace(c.Transcription.ForceBackend))
	if c.Transcription.ForceBackend == "" {
		if value, ok := os.LookupEnv("MURMUR_TRANSCRIPTION_BACKEND"); ok {
			c.Transcription.ForceBackend = strings.ToLower(strings.TrimSpace(value))
		}
	}
	c.Transcription.GPUServerURL = strings.TrimRight(strings.TrimSpace(c.Transcription.GPUServerURL), "/")
	if c.Transcription.GPUServerURL == "" {
		if value, ok := os.LookupEnv("MURMUR_GPU_SERVER_URL"); ok {
			c.Transcription.GPUServerURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Transcription.ModalURL = strings.TrimSpace(c.Transcription.ModalURL)
	c.Transcription.ModalToken = strings.TrimSpace(c.Transcription.ModalToken)
	if c.Transcription.ProbeTimeoutSeconds <= 0 {
		c.Transcription.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.APIKey = strings.TrimSpace(c.Analysis.APIKey)
	if c.Analysis.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_ANALYSIS_API_KEY"); ok {
			c.Analysis.APIKey = strings.TrimSpace(value)
		}
	}
	c.Analysis.BaseURL = strings.TrimSpace(c.Analysis.BaseURL)
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.MaxBatchItems <= 0 {
		c.Workflow.MaxBatchItems = defaultMaxBatchItems
	}
	if c.Workflow.StepConcurrency <= 0 {
		c.Workflow.StepConcurrency = defaultStepConcurrency
	}
	if c.Workflow.ClaimStaleMinutes <= 0 {
		c.Workflow.ClaimStaleMinutes = defaultClaimStaleMinutes
	}
	if c.Workflow.DownloadTimeoutSecs <= 0 {
		c.Workflow.DownloadTimeoutSecs = defaultDownloadTimeoutSecs
	}
	if c.Workflow.TranscribeTimeoutSecs <= 0 {
		c.Workflow.TranscribeTimeoutSecs = defaultTranscribeTimeoutSecs
	}
	if c.Workflow.HandoffTimeoutSecs <= 0 {
		c.Workflow.HandoffTimeoutSecs = defaultHandoffTimeoutSecs
	}
	if c.State.CompletedRetention <= 0 {
		c.State.CompletedRetention = defaultCompletedRetention
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
