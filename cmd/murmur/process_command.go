package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/runstate"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var maxItems int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one processing pass over the watched folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.New(logging.Options{
				Format: cfg.Logging.Format,
				Level:  cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := runstate.Open(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			backends, err := buildRouter(cfg, logger)
			if err != nil {
				return err
			}
			orchestrator, err := buildOrchestrator(cfg, store, backends, logger)
			if err != nil {
				return err
			}

			batch, err := orchestrator.ProcessBatch(signalCtx, maxItems)
			if batch != nil {
				printBatch(cmd, batch)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum inputs to process (0 = configured cap)")
	return cmd
}

func printBatch(cmd *cobra.Command, batch *pipeline.BatchReport) {
	if batch.Claimable == 0 {
		cmd.Println("Nothing to process.")
		return
	}

	rows := make([][]string, 0, len(batch.Reports))
	for _, report := range batch.Reports {
		outcome := "failed"
		if report.Success {
			outcome = "completed"
		}
		backend := report.Backend
		if report.Reused {
			backend += " (reused)"
		}
		rows = append(rows, []string{
			report.Input.Name,
			outcome,
			backend,
			report.Duration().Round(time.Second).String(),
		})
	}
	cmd.Println(renderTable(
		[]string{"Input", "Outcome", "Backend", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	cmd.Println(fmt.Sprintf("%s processed, %s failed in %s",
		strconv.Itoa(batch.Processed), strconv.Itoa(batch.Failed),
		batch.Duration().Round(time.Second)))
}
