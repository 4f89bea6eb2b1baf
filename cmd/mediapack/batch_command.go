package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediapack/internal/batch"
	"mediapack/internal/runlock"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch SOURCE...",
		Short: "Create descriptors for several content sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := make([]batch.Job, 0, len(args))
			for _, source := range args {
				job, err := ctx.jobFor(source)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}

			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			// Concurrent batch runs against one history database would
			// interleave writes; hold an advisory lock for the duration.
			if rt.store != nil {
				timeout := time.Duration(rt.cfg.Batch.LockTimeout) * time.Second
				release, err := runlock.Acquire(rt.store.Path()+".lock", timeout)
				if err != nil {
					return err
				}
				defer release()
			}

			result, err := rt.orchestrator.RunBatch(cmd.Context(), jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderOutcomes(result.Outcomes))
			fmt.Fprintf(out, "completed %d, failed %d, cancelled %d\n",
				result.Summary.Completed, result.Summary.Failed, result.Summary.Cancelled)
			if result.Summary.Failed > 0 {
				return fmt.Errorf("%d job(s) failed", result.Summary.Failed)
			}
			return nil
		},
	}
	return cmd
}

func renderOutcomes(outcomes []batch.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		detail := outcome.DescriptorPath
		if outcome.Err != nil {
			detail = outcome.Err.Error()
		}
		rows = append(rows, []string{
			outcome.Name,
			string(outcome.Status),
			fmt.Sprintf("%d", outcome.PieceCount),
			outcome.Elapsed.Round(time.Millisecond).String(),
			detail,
		})
	}
	return renderTable(
		[]string{"Name", "Status", "Pieces", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
