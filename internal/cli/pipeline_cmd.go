package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/pipeline"
)

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and resume checkpointed pipeline instances",
	}
	cmd.AddCommand(newPipelineListCmd())
	cmd.AddCommand(newPipelineStatusCmd())
	cmd.AddCommand(newPipelineResumeCmd())
	cmd.AddCommand(newPipelinePurgeCmd())
	return cmd
}

// openCheckpoints opens the configured checkpoint store. Only a durable
// store has anything to inspect from outside the server process.
func openCheckpoints() (pipeline.CheckpointStore, io.Closer, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver == "memory" {
		return nil, nil, fmt.Errorf("store driver %q keeps no checkpoints between runs", cfg.Store.Driver)
	}
	_, cp, closer, err := openStores(cfg.Store, paths, log)
	if err != nil {
		return nil, nil, err
	}
	return cp, closer, nil
}

func newPipelineListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closer, err := openCheckpoints()
			if err != nil {
				return err
			}
			defer closer.Close()

			list, err := store.ListInstances(cmd.Context(), !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no pipeline instances")
				return nil
			}
			printInstances(out, list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include finished instances")
	return cmd
}

func printInstances(w io.Writer, list []*pipeline.Instance) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUPDATED\tERROR")
	for _, inst := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.ID, inst.Status, inst.UpdatedAt.Format(time.RFC3339), inst.Error)
	}
	tw.Flush()
}

func newPipelineStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show an instance and its step checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closer, err := openCheckpoints()
			if err != nil {
				return err
			}
			defer closer.Close()

			inst, err := store.GetInstance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			steps, err := store.Steps(cmd.Context(), inst.ID)
			if err != nil {
				return err
			}
			printInstance(cmd.OutOrStdout(), inst, steps)
			return nil
		},
	}
}

func printInstance(w io.Writer, inst *pipeline.Instance, steps []pipeline.StepRecord) {
	fmt.Fprintf(w, "Instance: %s\n", inst.ID)
	fmt.Fprintf(w, "Status:   %s\n", inst.Status)
	fmt.Fprintf(w, "Created:  %s\n", inst.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:  %s\n", inst.UpdatedAt.Format(time.RFC3339))
	if inst.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", inst.Error)
	}
	if len(steps) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tOUTCOME\tERROR")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", s.Name, s.Status, s.Outcome, s.Error)
	}
	tw.Flush()
}

func newPipelineResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Run every unfinished instance to completion",
		Long: "Replays unfinished instances from their last checkpoint. With the redis bus the " +
			"instances are handed to the running workers; otherwise they run here.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "memory" {
				return fmt.Errorf("store driver %q keeps no checkpoints between runs", cfg.Store.Driver)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.Resume(ctx)
			if err != nil {
				return err
			}
			a.engine.Wait()

			verb := "resumed"
			if a.dispatch {
				verb = "dispatched"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d instance(s)\n", verb, n)
			return nil
		},
	}
}

type purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

func newPipelinePurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished instances and their checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, closer, err := openCheckpoints()
			if err != nil {
				return err
			}
			defer closer.Close()

			p, ok := store.(purger)
			if !ok {
				return fmt.Errorf("checkpoint store cannot purge")
			}
			n, err := p.Purge(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d instance(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "only instances last updated longer ago than this")
	return cmd
}
