package main

import (
	"strings"

	"github.com/spf13/cobra"

	"creditdocs-backend/internal/knowledge"
)

func queryCmd() *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "query TEXT...",
		Short: "Answer a question from the knowledge collections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "), knowledge.Options{Persist: persist})
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "store web results in every collection")
	return cmd
}
