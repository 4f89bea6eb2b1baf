package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediapack/internal/jobstore"
	"mediapack/internal/organizer"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent packaging jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Batch.HistoryDB == "" {
				return fmt.Errorf("job history is disabled; set batch.history_db in the configuration")
			}
			store, err := jobstore.Open(cfg.Batch.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.StartedAt.Local().Format("2006-01-02 15:04"),
					organizer.TitleCase(rec.Name),
					rec.Status,
					fmt.Sprintf("%d", rec.PieceCount),
					rec.Elapsed.Round(time.Millisecond).String(),
					rec.InfoHash,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Started", "Name", "Status", "Pieces", "Elapsed", "Info Hash"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of jobs to show")
	return cmd
}
