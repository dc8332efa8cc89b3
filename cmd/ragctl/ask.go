package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercora/backend/internal/assistant"
)

func newAskCmd() *cobra.Command {
	var (
		userName string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			answer := a.Assistant.Answer(cmd.Context(), assistant.Request{
				Question: strings.Join(args, " "),
				UserName: userName,
			})
			return printAnswer(cmd, answer, asJSON)
		},
	}
	cmd.Flags().StringVar(&userName, "name", "", "name to greet the user by")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, answer *assistant.Answer, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Println(answer.Text)
	if len(answer.ProductIDs) > 0 {
		cmd.Println()
		cmd.Printf("Products: %s\n", strings.Join(answer.ProductIDs, ", "))
	}
	return nil
}
