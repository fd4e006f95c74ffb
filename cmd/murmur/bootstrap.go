package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/router"
	"murmur/internal/runstate"
	"murmur/internal/services/analysis"
	"murmur/internal/services/drive"
	"murmur/internal/services/gpuserver"
	"murmur/internal/services/localwhisper"
	"murmur/internal/services/modal"
)

func buildDaemon(cfg *config.Config, store *runstate.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	backends, err := buildRouter(cfg, logger)
	if err != nil {
		return nil, err
	}
	orchestrator, err := buildOrchestrator(cfg, store, backends, logger)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg, store, orchestrator, backends, logger)
}

func buildOrchestrator(cfg *config.Config, store *runstate.Store, backends *router.Router, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	driveClient, err := drive.New(drive.Config{
		BaseURL:           cfg.Drive.BaseURL,
		Token:             cfg.Drive.Token,
		FolderID:          cfg.Drive.FolderID,
		ProcessedFolderID: cfg.Drive.ProcessedFolderID,
		Timeout:           time.Duration(cfg.Drive.RequestTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}

	analyzer := analysis.NewClient(analysis.Config{
		APIKey:         cfg.Analysis.APIKey,
		BaseURL:        cfg.Analysis.BaseURL,
		Model:          cfg.Analysis.Model,
		TimeoutSeconds: cfg.Analysis.TimeoutSeconds,
	})

	return pipeline.New(
		cfg,
		store,
		&driveStorage{client: driveClient},
		backends,
		analyzer,
		notifications.NewService(cfg),
		logger,
	)
}

// buildRouter assembles the backend roster in priority order: GPU server,
// Modal, local CPU.
func buildRouter(cfg *config.Config, logger *slog.Logger) (*router.Router, error) {
	var backends []router.Backend

	if cfg.Transcription.GPUServerURL != "" {
		client, err := gpuserver.New(gpuserver.Config{
			BaseURL: cfg.Transcription.GPUServerURL,
			Timeout: time.Duration(cfg.Workflow.TranscribeTimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("gpu server backend: %w", err)
		}
		backends = append(backends, client)
	}

	if cfg.Transcription.ModalEnabled && cfg.Transcription.ModalURL != "" {
		client, err := modal.New(modal.Config{
			Endpoint: cfg.Transcription.ModalURL,
			Token:    cfg.Transcription.ModalToken,
			Timeout:  time.Duration(cfg.Workflow.TranscribeTimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("modal backend: %w", err)
		}
		backends = append(backends, client)
	}

	if cfg.Transcription.LocalEnabled {
		backends = append(backends, localwhisper.NewService(localwhisper.Config{
			Model:   cfg.Transcription.Model,
			WorkDir: cfg.Paths.StagingDir,
		}))
	}

	return router.New(backends, router.Options{
		ForceBackend: cfg.Transcription.ForceBackend,
		ProbeTimeout: time.Duration(cfg.Transcription.ProbeTimeoutSeconds) * time.Second,
		Logger:       logger,
	})
}

// driveStorage adapts the Drive client to the pipeline's storage interface.
type driveStorage struct {
	client *drive.Client
}

func (s *driveStorage) List(ctx context.Context) ([]pipeline.Input, error) {
	files, err := s.client.List(ctx)
	if err != nil {
		return nil, err
	}
	inputs := make([]pipeline.Input, 0, len(files))
	for _, file := range files {
		inputs = append(inputs, pipeline.Input{
			ID:       file.ID,
			Name:     file.Name,
			Size:     file.Size,
			Recorded: file.Created,
		})
	}
	return inputs, nil
}

func (s *driveStorage) Download(ctx context.Context, input pipeline.Input, destPath string) error {
	return s.client.Download(ctx, input.ID, destPath)
}

func (s *driveStorage) Relocate(ctx context.Context, input pipeline.Input, newName string) error {
	return s.client.Relocate(ctx, input.ID, newName)
}
