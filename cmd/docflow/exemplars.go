package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/extract"
	"creditdocs-backend/internal/shared/telemetry"
)

func exemplarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exemplars",
		Short: "Manage nearest-neighbor classification exemplars",
	}
	cmd.AddCommand(exemplarsAddCmd())
	return cmd
}

func exemplarsAddCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add --label LABEL FILE...",
		Short: "Extract, embed and store labeled exemplars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := classify.ParseLabel(label)
			if !ok || parsed == classify.LabelUnknown {
				return fmt.Errorf("invalid label %q", label)
			}
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Embedder == nil {
				telemetry.Warn("exemplars.no_embedder", map[string]any{"label": parsed})
			}

			added := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				ext, err := app.Extractor.Extract(cmd.Context(), extract.Document{Bytes: data, FileName: filepath.Base(path)})
				if err != nil {
					if ctxErr := cmd.Context().Err(); ctxErr != nil {
						return ctxErr
					}
					telemetry.Warn("exemplars.extract_failed", map[string]any{"file": path, "error": err.Error()})
					continue
				}
				ex, err := app.Classifier.AddExemplar(cmd.Context(), parsed, ext.Text)
				if err != nil {
					return fmt.Errorf("add %s: %w", path, err)
				}
				added++
				telemetry.Info("exemplars.added", map[string]any{
					"file":    path,
					"id":      ex.ID,
					"label":   ex.Label,
					"vectors": len(ex.Embedding) > 0,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d exemplars as %s\n", added, len(args), parsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "exemplar label (credit-report, debt-letter, cfpb-complaint, other)")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
