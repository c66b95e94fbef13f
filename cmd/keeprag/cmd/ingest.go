package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var sectionID int64

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion invocation over the job queue",
		Long: `Runs one batch invocation: claims up to the configured number of
pending jobs (topping up with stuck ones), embeds each section's chunks, and
stores them. With --section the given section is processed directly,
bypassing job bookkeeping.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if sectionID > 0 {
				if err := a.worker.ProcessSection(cmd.Context(), sectionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed section %d\n", sectionID)
				return nil
			}

			handled, err := a.worker.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Handled %d job(s)\n", handled)
			return nil
		},
	}

	cmd.Flags().Int64Var(&sectionID, "section", 0, "Process this section directly, skipping the queue")
	return cmd
}
