package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			written, err := config.WriteSample(path, force)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote sample configuration to %s\n", written)
			cmd.Println("Edit it, then run 'murmur status' to verify the setup.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if exists {
				cmd.Printf("Configuration file: %s\n", resolvedPath)
			} else {
				cmd.Printf("No configuration file at %s, showing defaults.\n", resolvedPath)
			}

			rows := [][]string{
				{"paths.staging_dir", cfg.Paths.StagingDir},
				{"paths.transcripts_dir", cfg.Paths.TranscriptsDir},
				{"paths.log_dir", cfg.Paths.LogDir},
				{"paths.api_bind", cfg.Paths.APIBind},
				{"drive.folder_id", cfg.Drive.FolderID},
				{"drive.processed_folder_id", cfg.Drive.ProcessedFolderID},
				{"transcription.model", cfg.Transcription.Model},
				{"transcription.force_backend", cfg.Transcription.ForceBackend},
				{"transcription.gpu_server_url", cfg.Transcription.GPUServerURL},
				{"transcription.modal_enabled", fmt.Sprintf("%t", cfg.Transcription.ModalEnabled)},
				{"transcription.local_enabled", fmt.Sprintf("%t", cfg.Transcription.LocalEnabled)},
				{"analysis.model", cfg.Analysis.Model},
				{"notifications.ntfy_topic", cfg.Notifications.NtfyTopic},
				{"workflow.poll_interval", fmt.Sprintf("%d", cfg.Workflow.PollInterval)},
				{"workflow.max_batch_items", fmt.Sprintf("%d", cfg.Workflow.MaxBatchItems)},
				{"state.completed_retention", fmt.Sprintf("%d", cfg.State.CompletedRetention)},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
			}
			cmd.Println(renderTable(
				[]string{"Setting", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}
