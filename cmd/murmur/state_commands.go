package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/runstate"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage the run state store",
	}
	cmd.AddCommand(newStateListCommand(ctx))
	cmd.AddCommand(newStateEventsCommand(ctx))
	cmd.AddCommand(newStateRetryCommand(ctx))
	cmd.AddCommand(newStateClearCommand(ctx))
	return cmd
}

func openStore(ctx *commandContext) (*runstate.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := runstate.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return store, nil
}

func newStateListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed inputs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListCompleted(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list completed: %w", err)
			}
			if len(records) == 0 {
				cmd.Println("No completed inputs.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.InputName,
					record.RunID,
					record.CompletedAt.Local().Format(time.RFC3339),
				})
			}
			cmd.Println(renderTable(
				[]string{"Input", "Run", "Completed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum rows to show (0 = all)")
	return cmd
}

func newStateEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events <input-id>",
		Short: "Show the event log for one input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.EventsFor(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			if len(events) == 0 {
				cmd.Println("No events recorded for this input.")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, event := range events {
				rows = append(rows, []string{
					event.CreatedAt.Local().Format(time.RFC3339),
					event.EventType,
					event.Step,
					event.Backend,
					event.Detail,
				})
			}
			cmd.Println(renderTable(
				[]string{"Time", "Event", "Step", "Backend", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show (0 = all)")
	return cmd
}

func newStateRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <input-id>",
		Short: "Forget a completed input so the next batch reprocesses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.ForgetCompleted(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("retry input: %w", err)
			}
			if !removed {
				return fmt.Errorf("input %q has no completed record", args[0])
			}
			cmd.Printf("Input %s will be reprocessed on the next batch.\n", args[0])
			return nil
		},
	}
	return cmd
}

func newStateClearCommand(ctx *commandContext) *cobra.Command {
	var (
		completed bool
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear run state records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if completed == all {
				return fmt.Errorf("specify exactly one of --completed or --all")
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if all {
				if err := store.ClearAll(cmd.Context()); err != nil {
					return fmt.Errorf("clear state: %w", err)
				}
				cmd.Println("Cleared all run state.")
				return nil
			}

			removed, err := store.ClearCompleted(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear completed: %w", err)
			}
			cmd.Printf("Removed %d completed records.\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&completed, "completed", false, "Remove completed input records")
	cmd.Flags().BoolVar(&all, "all", false, "Remove all records, including claims and transcripts")
	return cmd
}
