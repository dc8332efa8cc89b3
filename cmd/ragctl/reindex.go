package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mercora/backend/features/reindex"
)

func newReindexCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the document store and vector index once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := a.Reindex.Run(cmd.Context(), reindex.TriggerCLI)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			cmd.Println(string(data))

			if strict && !report.Success {
				return fmt.Errorf("reindex finished with %d record errors and %d step errors", report.TotalErrors, len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any record fails")
	return cmd
}
