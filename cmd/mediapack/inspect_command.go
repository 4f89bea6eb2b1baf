package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediapack/internal/descriptor"
)

func newInspectCommand() *cobra.Command {
	var showFiles bool

	cmd := &cobra.Command{
		Use:         "inspect FILE",
		Short:       "Show the contents of a descriptor file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}
			d, err := descriptor.Parse(data)
			if err != nil {
				return err
			}
			infoHash, err := descriptor.InfoHash(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:          %s\n", d.Name)
			fmt.Fprintf(out, "info hash:     %s\n", infoHash)
			fmt.Fprintf(out, "algorithm:     %s\n", d.Algorithm)
			fmt.Fprintf(out, "piece length:  %s (%d bytes)\n", formatBytes(d.PieceLength), d.PieceLength)
			fmt.Fprintf(out, "pieces:        %d\n", d.PieceCount())
			fmt.Fprintf(out, "total size:    %s (%d bytes)\n", formatBytes(d.TotalLength), d.TotalLength)
			fmt.Fprintf(out, "files:         %d\n", len(d.Files))
			fmt.Fprintf(out, "private:       %s\n", yesNo(d.Private))
			if len(d.Trackers) > 0 {
				fmt.Fprintf(out, "trackers:      %s\n", strings.Join(d.Trackers, ", "))
			}
			if d.Comment != "" {
				fmt.Fprintf(out, "comment:       %s\n", d.Comment)
			}
			if d.CreatedBy != "" {
				fmt.Fprintf(out, "created by:    %s\n", d.CreatedBy)
			}
			if !d.CreatedAt.IsZero() {
				fmt.Fprintf(out, "created at:    %s\n", d.CreatedAt.Format(time.RFC3339))
			}
			if showFiles {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(d.Files))
				for _, file := range d.Files {
					rows = append(rows, []string{
						strings.Join(file.Path, "/"),
						formatBytes(file.Length),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Path", "Size"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFiles, "files", false, "List the files in the descriptor")
	return cmd
}
