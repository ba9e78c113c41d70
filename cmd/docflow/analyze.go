package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"creditdocs-backend/internal/pipeline"
	"creditdocs-backend/internal/reports"
)

const cliOwner = "cli"

func analyzeCmd() *cobra.Command {
	var (
		withKnowledge bool
		persist       bool
		save          bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Extract, classify and analyze one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			fileName := filepath.Base(args[0])
			res, err := app.Pipeline.Run(cmd.Context(), pipeline.Document{
				Bytes:    data,
				FileName: fileName,
				OwnerID:  cliOwner,
			}, pipeline.Options{WithKnowledge: withKnowledge, PersistKnowledge: persist})
			if err != nil {
				return err
			}

			base := reports.Report{
				ID:        uuid.NewString(),
				OwnerID:   cliOwner,
				FileName:  fileName,
				CreatedAt: time.Now().UTC(),
			}
			report := pipeline.ReportFromResult(base, res)
			if save {
				report = app.Pipeline.SaveReport(cmd.Context(), base, res)
			}

			out := map[string]any{"report": report}
			if res.Knowledge != nil {
				out["knowledgeTier"] = res.Knowledge.Tier
			}
			out["durationMs"] = res.Duration.Milliseconds()
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&withKnowledge, "knowledge", false, "look up reference material for the document type")
	cmd.Flags().BoolVar(&persist, "persist", false, "store web results found during the knowledge lookup")
	cmd.Flags().BoolVar(&save, "save", false, "store the report")
	return cmd
}
