package main

import (
	"github.com/spf13/cobra"

	"creditdocs-backend/internal/evaluate"
)

func evalCmd() *cobra.Command {
	var (
		dataset     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "eval --dataset FILE",
		Short: "Grade gateway answers against a question/answer dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := evaluate.LoadDataset(dataset)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sum, err := evaluate.New(app.Gateway, evaluate.WithConcurrency(concurrency)).Run(cmd.Context(), ds)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "YAML dataset of question/answer examples")
	cmd.Flags().IntVar(&concurrency, "concurrency", evaluate.DefaultConcurrency, "examples evaluated at once")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
