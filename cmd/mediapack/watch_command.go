package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediapack/internal/batch"
	"mediapack/internal/config"
	"mediapack/internal/runlock"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Watch a directory and package new sources as they settle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			// A watcher is long-lived and shares the history database
			// with batch runs; hold the advisory lock for the duration.
			if rt.store != nil {
				timeout := time.Duration(rt.cfg.Batch.LockTimeout) * time.Second
				release, err := runlock.Acquire(rt.store.Path()+".lock", timeout)
				if err != nil {
					return err
				}
				defer release()
			}

			out := cmd.OutOrStdout()
			var outMu sync.Mutex
			watcher, err := batch.NewWatcher(batch.WatcherOptions{
				Orchestrator: rt.orchestrator,
				Logger:       rt.logger,
				Interval:     interval,
				JobFor:       ctx.jobFor,
				Results: func(outcome batch.Outcome) {
					outMu.Lock()
					defer outMu.Unlock()
					if outcome.Err != nil {
						fmt.Fprintf(out, "%s: %s: %v\n", outcome.Source, outcome.Status, outcome.Err)
						return
					}
					fmt.Fprintf(out, "%s: wrote %s (%s)\n",
						outcome.Source, outcome.DescriptorPath, outcome.Elapsed.Round(time.Millisecond))
				},
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(out, "Watching %s (polling every %s, interrupt to stop)\n", dir, watcherInterval(interval))
			return watcher.Watch(runCtx, dir)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", batch.DefaultWatchInterval, "Polling interval")
	return cmd
}

func watcherInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return batch.DefaultWatchInterval
	}
	return interval
}
