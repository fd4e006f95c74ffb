package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/logging"
	"murmur/internal/preflight"
	"murmur/internal/router"
	"murmur/internal/runstate"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, external services, and run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(logging.Options{
				Format: cfg.Logging.Format,
				Level:  "error",
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			var backends *router.Router
			if built, err := buildRouter(cfg, logger); err != nil {
				cmd.PrintErrf("backend roster: %v\n", err)
			} else {
				backends = built
			}

			results := preflight.RunAll(cmd.Context(), cfg, backends)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				state := "FAIL"
				if result.Passed {
					state = "ok"
				}
				rows = append(rows, []string{result.Name, state, result.Detail})
			}
			cmd.Println(renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			store, err := runstate.Open(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			health, err := store.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("store health: %w", err)
			}
			cmd.Println(renderTable(
				[]string{"Completed", "In progress", "Transcripts", "Events"},
				[][]string{{
					strconv.Itoa(health.Completed),
					strconv.Itoa(health.InProgress),
					strconv.Itoa(health.Transcripts),
					strconv.Itoa(health.Events),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))

			claims, err := store.ListInProgress(cmd.Context())
			if err != nil {
				return fmt.Errorf("list in-progress: %w", err)
			}
			if len(claims) > 0 {
				claimRows := make([][]string, 0, len(claims))
				for _, claim := range claims {
					claimRows = append(claimRows, []string{
						claim.InputName,
						claim.RunID,
						claim.ClaimedAt.Local().Format(time.RFC3339),
						claim.Heartbeat.Local().Format(time.RFC3339),
					})
				}
				cmd.Println(renderTable(
					[]string{"Input", "Run", "Claimed", "Heartbeat"},
					claimRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}

			if !preflight.Passed(results) {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
}
