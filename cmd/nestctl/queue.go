package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/birbparty/nestlink/internal/queue"
	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

func newQueueCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the durable offline queue",
		PersistentPreRun: func(*cobra.Command, []string) {
			flags.durable = true
		},
	}

	cmd.AddCommand(
		newQueueListCmd(flags),
		newQueueDrainCmd(flags),
		newQueueDeadCmd(flags),
		newQueueClearCmd(flags),
	)
	return cmd
}

func newQueueListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued requests, head first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				requests, err := c.Queued(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tMETHOD\tURL\tRETRIES\tQUEUED")
				for _, r := range requests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Method, r.URL, r.RetryCount, r.EnqueuedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

func newQueueDrainCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay queued requests once; discarded requests are kept as dead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				store, err := flags.queueStore(ctx)
				if err != nil {
					return err
				}

				// QueueFailed carries only the request line, so keep the
				// full requests around for Bury
				snapshot, err := c.Queued(ctx)
				if err != nil {
					return err
				}
				byID := make(map[string]queue.Request, len(snapshot))
				for _, r := range snapshot {
					byID[r.ID] = r
				}

				sdk.Subscribe(c, func(e sdk.QueueSuccess) {
					fmt.Fprintf(cmd.OutOrStdout(), "✅ %s %s -> %d\n", e.Method, e.URL, e.Status)
				})
				sdk.Subscribe(c, func(e sdk.QueueFailed) {
					fmt.Fprintf(cmd.OutOrStdout(), "❌ %s %s discarded after %d attempts: %v\n", e.Method, e.URL, e.Attempts, e.Err)

					r, ok := byID[e.QueueID]
					if !ok {
						r = queue.Request{ID: e.QueueID, Method: e.Method, URL: e.URL}
					}
					if err := store.Bury(ctx, r, e.Attempts, e.Err); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
					}
				})

				result, err := c.Drain(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "attempted %d, succeeded %d, requeued %d, discarded %d\n",
					result.Attempted, result.Succeeded, result.Requeued, result.Discarded)
				if result.Interrupted {
					fmt.Fprintln(cmd.OutOrStdout(), "drain interrupted; remaining requests stay queued")
				}
				return nil
			})
		},
	}
}

func newQueueDeadCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List requests discarded by drain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, _ *sdk.Client, _ *Session) error {
				store, err := flags.queueStore(ctx)
				if err != nil {
					return err
				}
				dead, err := store.Dead(ctx, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tMETHOD\tURL\tATTEMPTS\tERROR")
				for _, d := range dead {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Method, d.URL, d.Attempts, d.Error)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}

func newQueueClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued request without replaying it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				n, err := c.QueueLen(ctx)
				if err != nil {
					return err
				}
				if err := c.ClearQueue(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queued requests\n", n)
				return nil
			})
		},
	}
}
