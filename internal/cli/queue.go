package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quernio/quern/internal/broker"
	"github.com/quernio/quern/internal/queue"
)

// NewQueueCommand constructs the `queues` command group and subcommands.
func NewQueueCommand() *cobra.Command {
	queuesCmd := &cobra.Command{
		Use:     "queues",
		Aliases: []string{"queue", "q"},
		Short:   "Queue management",
		Long: `Queue management operations.

Queue Types:
  fifo        strict enqueue order
  priority    highest priority first, enqueue order within a priority
  delayed     messages invisible until their delay elapses

Commands:
  create          Create a queue
  list            List queues
  describe        Show a queue's type, options, and live counts
  set-attributes  Change delivery options
  set-dlq         Link or clear a dead-letter queue
  purge           Delete every message (requires --confirm)
  delete          Delete the queue itself (requires --confirm)`,
	}
	queuesCmd.AddCommand(
		newQueueCreateCommand(),
		newQueueListCommand(),
		newQueueDescribeCommand(),
		newQueueSetAttributesCommand(),
		newQueueSetDLQCommand(),
		newQueuePurgeCommand(),
		newQueueDeleteCommand(),
	)
	return queuesCmd
}

// newQueueCreateCommand constructs the `queues create` subcommand.
func newQueueCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			qtype, _ := cmd.Flags().GetString("type")

			var opts *queue.Options
			if cmd.Flags().Changed("visibility-timeout") ||
				cmd.Flags().Changed("max-receive-count") ||
				cmd.Flags().Changed("retention") ||
				cmd.Flags().Changed("dead-letter-queue") {
				vis, _ := cmd.Flags().GetInt("visibility-timeout")
				maxRecv, _ := cmd.Flags().GetInt("max-receive-count")
				retention, _ := cmd.Flags().GetInt("retention")
				dlq, _ := cmd.Flags().GetString("dead-letter-queue")
				opts = &queue.Options{
					VisibilityTimeoutSeconds: vis,
					MaxReceiveCount:          maxRecv,
					MessageRetentionSeconds:  retention,
					DeadLetterQueue:          dlq,
				}
			}

			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.CreateQueue(ctx, name, queue.Type(qtype), opts); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Queue name")
	createCmd.Flags().String("type", "fifo", "Queue type: fifo|priority|delayed")
	createCmd.Flags().Int("visibility-timeout", queue.DefaultVisibilityTimeoutSeconds, "Visibility timeout in seconds")
	createCmd.Flags().Int("max-receive-count", queue.DefaultMaxReceiveCount, "Dead-letter after this many expired leases (0 disables)")
	createCmd.Flags().Int("retention", queue.DefaultMessageRetentionSeconds, "Message retention in seconds (0 disables)")
	createCmd.Flags().String("dead-letter-queue", "", "Dead-letter target queue (must exist)")
	return createCmd
}

// newQueueListCommand constructs the `queues list` subcommand.
func newQueueListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				names, err := sys.ListQueues(ctx, prefix)
				if err != nil {
					return err
				}
				for _, name := range names {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	listCmd.Flags().String("prefix", "", "Only queues whose name starts with this prefix")
	return listCmd
}

// newQueueDescribeCommand constructs the `queues describe` subcommand.
func newQueueDescribeCommand() *cobra.Command {
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Show a queue's type, options, and live counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				info, err := sys.GetQueueAttributes(ctx, name)
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
	describeCmd.Flags().String("name", "", "Queue name")
	return describeCmd
}

// newQueueSetAttributesCommand constructs the `queues set-attributes` subcommand.
func newQueueSetAttributesCommand() *cobra.Command {
	setCmd := &cobra.Command{
		Use:   "set-attributes",
		Short: "Change a queue's delivery options",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")

			var upd broker.AttributeUpdate
			if cmd.Flags().Changed("visibility-timeout") {
				v, _ := cmd.Flags().GetInt("visibility-timeout")
				upd.VisibilityTimeoutSeconds = &v
			}
			if cmd.Flags().Changed("max-receive-count") {
				v, _ := cmd.Flags().GetInt("max-receive-count")
				upd.MaxReceiveCount = &v
			}
			if cmd.Flags().Changed("retention") {
				v, _ := cmd.Flags().GetInt("retention")
				upd.MessageRetentionSeconds = &v
			}
			if upd.VisibilityTimeoutSeconds == nil && upd.MaxReceiveCount == nil && upd.MessageRetentionSeconds == nil {
				return fmt.Errorf("nothing to change; pass at least one option flag")
			}

			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.SetQueueAttributes(ctx, name, upd); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	setCmd.Flags().String("name", "", "Queue name")
	setCmd.Flags().Int("visibility-timeout", 0, "Visibility timeout in seconds")
	setCmd.Flags().Int("max-receive-count", 0, "Dead-letter after this many expired leases (0 disables)")
	setCmd.Flags().Int("retention", 0, "Message retention in seconds (0 disables)")
	return setCmd
}

// newQueueSetDLQCommand constructs the `queues set-dlq` subcommand.
func newQueueSetDLQCommand() *cobra.Command {
	setDLQCmd := &cobra.Command{
		Use:   "set-dlq",
		Short: "Link or clear a queue's dead-letter target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			target, _ := cmd.Flags().GetString("target")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.SetDeadLetterQueue(ctx, name, target); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	setDLQCmd.Flags().String("name", "", "Queue name")
	setDLQCmd.Flags().String("target", "", "Dead-letter queue name (empty clears the link)")
	return setDLQCmd
}

// newQueuePurgeCommand constructs the `queues purge` subcommand.
func newQueuePurgeCommand() *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every message in a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to purge %q without --confirm", name)
			}
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				n, err := sys.PurgeQueue(ctx, name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "purged:", n)
				return nil
			})
		},
	}
	purgeCmd.Flags().String("name", "", "Queue name")
	purgeCmd.Flags().Bool("confirm", false, "Required to actually purge")
	return purgeCmd
}

// newQueueDeleteCommand constructs the `queues delete` subcommand.
func newQueueDeleteCommand() *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a queue and all its messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to delete %q without --confirm", name)
			}
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.DeleteQueue(ctx, name); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	deleteCmd.Flags().String("name", "", "Queue name")
	deleteCmd.Flags().Bool("confirm", false, "Required to actually delete")
	return deleteCmd
}
