package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quernio/quern/internal/broker"
	"github.com/quernio/quern/internal/queue"
)

// parseAttrs merges repeated key=value flags with an optional JSON object.
func parseAttrs(pairs []string, attrJSON string) (map[string]string, error) {
	attrs := map[string]string{}
	if attrJSON != "" {
		if err := json.Unmarshal([]byte(attrJSON), &attrs); err != nil {
			return nil, fmt.Errorf("invalid --attr-json: %w", err)
		}
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --attr %q; expected key=value", pair)
		}
		attrs[k] = v
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

// newSendCommand constructs the `send` command.
func newSendCommand() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send messages to a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			bodies, _ := cmd.Flags().GetStringArray("data")
			attrPairs, _ := cmd.Flags().GetStringArray("attr")
			attrJSON, _ := cmd.Flags().GetString("attr-json")
			priority, _ := cmd.Flags().GetInt("priority")
			delay, _ := cmd.Flags().GetDuration("delay")

			if len(bodies) == 0 {
				return fmt.Errorf("at least one --data is required")
			}
			attrs, err := parseAttrs(attrPairs, attrJSON)
			if err != nil {
				return err
			}
			reqs := make([]queue.EnqueueRequest, len(bodies))
			for i, body := range bodies {
				reqs[i] = queue.EnqueueRequest{
					Body:       []byte(body),
					Attributes: attrs,
					Priority:   priority,
					Delay:      delay,
				}
			}

			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				ids, err := sys.SendMessageBatch(ctx, queueName, reqs)
				if err != nil {
					return err
				}
				for _, id := range ids {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", id)
				}
				return nil
			})
		},
	}
	sendCmd.Flags().StringP("queue", "q", "", "Queue name")
	sendCmd.Flags().StringArray("data", []string{}, "Message body (repeat for a batch)")
	sendCmd.Flags().StringArray("attr", []string{}, "Message attribute key=value (repeat)")
	sendCmd.Flags().String("attr-json", "", "Message attributes as a JSON object")
	sendCmd.Flags().Int("priority", 0, "Priority (priority queues; higher first)")
	sendCmd.Flags().Duration("delay", 0, "Initial delay (delayed queues only)")
	return sendCmd
}

// newReceiveCommand constructs the `receive` command.
func newReceiveCommand() *cobra.Command {
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Lease messages from a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			max, _ := cmd.Flags().GetInt("max")
			autoAck, _ := cmd.Flags().GetBool("ack")

			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				msgs, err := sys.ReceiveMessages(ctx, queueName, max)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, m := range msgs {
					if err := enc.Encode(renderMessage(m)); err != nil {
						return err
					}
					if autoAck {
						if err := sys.AcknowledgeMessage(ctx, queueName, m.ID); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
	receiveCmd.Flags().StringP("queue", "q", "", "Queue name")
	receiveCmd.Flags().Int("max", 1, "Maximum messages to lease")
	receiveCmd.Flags().Bool("ack", false, "Acknowledge each message after printing it")
	return receiveCmd
}

// newAckCommand constructs the `ack` command.
func newAckCommand() *cobra.Command {
	ackCmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge an in-flight message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			msgID, _ := cmd.Flags().GetString("id")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.AcknowledgeMessage(ctx, queueName, msgID); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	ackCmd.Flags().StringP("queue", "q", "", "Queue name")
	ackCmd.Flags().String("id", "", "Message ID")
	return ackCmd
}

// newDeadLetterCommand constructs the `dead-letter` command.
func newDeadLetterCommand() *cobra.Command {
	dlCmd := &cobra.Command{
		Use:   "dead-letter",
		Short: "Give up on an in-flight message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			msgID, _ := cmd.Flags().GetString("id")
			reason, _ := cmd.Flags().GetString("reason")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.DeadLetterMessage(ctx, queueName, msgID, reason); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	dlCmd.Flags().StringP("queue", "q", "", "Queue name")
	dlCmd.Flags().String("id", "", "Message ID")
	dlCmd.Flags().String("reason", "", "Failure reason recorded on the message")
	return dlCmd
}

// newPeekCommand constructs the `peek` command.
func newPeekCommand() *cobra.Command {
	peekCmd := &cobra.Command{
		Use:   "peek",
		Short: "Inspect messages without leasing them",
		Long: `Inspect messages without leasing them.

The optional --filter is a CEL expression over these variables:

  id, sequence, priority, receive_count, status, size,
  body_text, json, attributes, enqueued_at_ms, available_at_ms, now_ms

Examples:
  quern peek -q orders --max 5
  quern peek -q orders --filter 'receive_count > 2'
  quern peek -q orders --filter 'json.kind == "export" && priority >= 5'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			max, _ := cmd.Flags().GetInt("max")
			filter, _ := cmd.Flags().GetString("filter")

			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				msgs, err := sys.PeekMessages(ctx, queueName, max, filter)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, m := range msgs {
					if err := enc.Encode(renderMessage(m)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	peekCmd.Flags().StringP("queue", "q", "", "Queue name")
	peekCmd.Flags().Int("max", 10, "Maximum messages to show (0 for all)")
	peekCmd.Flags().String("filter", "", "CEL filter expression")
	return peekCmd
}

// newRedriveCommand constructs the `redrive` command.
func newRedriveCommand() *cobra.Command {
	redriveCmd := &cobra.Command{
		Use:   "redrive",
		Short: "Return dead-lettered messages to delivery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			max, _ := cmd.Flags().GetInt("max")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				n, err := sys.RedriveMessages(ctx, queueName, max)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "redriven:", n)
				return nil
			})
		},
	}
	redriveCmd.Flags().StringP("queue", "q", "", "Queue name")
	redriveCmd.Flags().Int("max", 0, "Maximum messages to redrive (0 for all)")
	return redriveCmd
}

// newChangeDelayCommand constructs the `change-delay` command.
func newChangeDelayCommand() *cobra.Command {
	changeDelayCmd := &cobra.Command{
		Use:   "change-delay",
		Short: "Reschedule a waiting message on a delayed queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			msgID, _ := cmd.Flags().GetString("id")
			delay, _ := cmd.Flags().GetDuration("delay")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.ChangeMessageDelay(ctx, queueName, msgID, delay); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	changeDelayCmd.Flags().StringP("queue", "q", "", "Queue name")
	changeDelayCmd.Flags().String("id", "", "Message ID")
	changeDelayCmd.Flags().Duration("delay", 0, "New delay from now (0 releases immediately)")
	return changeDelayCmd
}

// newExtendVisibilityCommand constructs the `extend-visibility` command.
func newExtendVisibilityCommand() *cobra.Command {
	extendCmd := &cobra.Command{
		Use:   "extend-visibility",
		Short: "Restart an in-flight message's visibility window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			msgID, _ := cmd.Flags().GetString("id")
			by, _ := cmd.Flags().GetDuration("by")
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				if err := sys.ChangeMessageVisibility(ctx, queueName, msgID, by); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	extendCmd.Flags().StringP("queue", "q", "", "Queue name")
	extendCmd.Flags().String("id", "", "Message ID")
	extendCmd.Flags().Duration("by", 30*time.Second, "New visibility window from now")
	return extendCmd
}
