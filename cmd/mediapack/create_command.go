package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		nameOverride string
		outputDir    string
		trackers     []string
		private      bool
		comment      string
		pieceLength  int64
	)

	cmd := &cobra.Command{
		Use:   "create SOURCE",
		Short: "Create a descriptor for one content source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.jobFor(args[0])
			if err != nil {
				return err
			}
			job.NameOverride = nameOverride
			if outputDir != "" {
				job.OutputDir = outputDir
			}
			if cmd.Flags().Changed("tracker") {
				job.Options.Trackers = trackers
			}
			if cmd.Flags().Changed("private") {
				job.Options.Private = private
			}
			if cmd.Flags().Changed("comment") {
				job.Options.Comment = comment
			}
			if pieceLength > 0 {
				job.Options.PieceLength = pieceLength
			}

			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			outcome := rt.orchestrator.Submit(cmd.Context(), job).Wait()
			if outcome.Err != nil {
				return outcome.Err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", outcome.DescriptorPath)
			fmt.Fprintf(out, "  name:         %s\n", outcome.Name)
			fmt.Fprintf(out, "  info hash:    %s\n", outcome.InfoHash)
			fmt.Fprintf(out, "  pieces:       %d x %s\n", outcome.PieceCount, formatBytes(outcome.PieceLength))
			fmt.Fprintf(out, "  total:        %s (%d bytes)\n", formatBytes(outcome.TotalBytes), outcome.TotalBytes)
			fmt.Fprintf(out, "  elapsed:      %s\n", outcome.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&nameOverride, "name", "n", "", "Override the derived descriptor name")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (defaults to config)")
	cmd.Flags().StringArrayVarP(&trackers, "tracker", "t", nil, "Tracker URL (repeatable, overrides config)")
	cmd.Flags().BoolVar(&private, "private", false, "Mark the descriptor private")
	cmd.Flags().StringVar(&comment, "comment", "", "Descriptor comment")
	cmd.Flags().Int64Var(&pieceLength, "piece-length", 0, "Piece length in bytes (0 selects automatically)")
	return cmd
}
