package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"creditdocs-backend/internal/extract"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE",
		Short: "Extract a document and print its label",
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

			ext, err := app.Extractor.Extract(cmd.Context(), extract.Document{Bytes: data, FileName: filepath.Base(args[0])})
			if err != nil && cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			res, err := app.Classifier.Classify(cmd.Context(), ext.Text)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"label":          res.Label,
				"tier":           res.Tier,
				"confidence":     res.Confidence,
				"extractionTier": ext.Tier,
			})
		},
	}
}
