package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quernio/quern/internal/broker"
)

// newSweepCommand constructs the `sweep` command.
func newSweepCommand() *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one maintenance pass over every queue",
		Long: `Run one maintenance pass over every queue.

A pass promotes due delayed messages, returns expired leases to available,
dead-letters messages past their receive-count limit, and applies message
retention. Prints the per-queue results.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				results, err := sys.RunMaintenance(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			})
		},
	}
	return sweepCmd
}

// newStatsCommand constructs the `stats` command.
func newStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show message counts across every queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				stats, err := sys.GetSystemStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}
	return statsCmd
}

// newWatchCommand constructs the `watch` command.
func newWatchCommand() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the maintenance loop and print lifecycle events",
		Long: `Run the maintenance loop and print lifecycle events as JSON lines
until interrupted. Acts as the sweeper process for deployments where the
embedding application does not run maintenance itself.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSystem(cmd, func(ctx context.Context, sys *broker.System) error {
				sub := sys.Subscribe()
				defer sub.Close()
				sys.StartMaintenance()
				defer sys.StopMaintenance()

				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "watching; ctrl-c to stop")
				enc := json.NewEncoder(cmd.OutOrStdout())
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev, ok := <-sub.C:
						if !ok {
							return nil
						}
						if err := enc.Encode(ev); err != nil {
							return err
						}
					}
				}
			})
		},
	}
	return watchCmd
}
