package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"creditdocs-backend/internal/bootstrap"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/storage/db"
	"creditdocs-backend/internal/shared/telemetry"
)

var (
	cfgFile string
	cfg     config.Config
	rootCmd = &cobra.Command{
		Use:   "docflow",
		Short: "Run the document pipeline from the command line",
		Long: `docflow extracts, classifies and analyzes credit documents using the same
pipeline as the API and worker. Configuration comes from the environment,
an optional YAML file and the flags below.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, console)")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(exemplarsCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(migrateCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	cfg = config.LoadFile(cfgFile)
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format := viper.GetString("log_format"); format != "" {
		cfg.LogFormat = format
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)
	return nil
}

func buildApp(cmd *cobra.Command) (*bootstrap.App, error) {
	app, err := bootstrap.Build(cmd.Context(), cfg, bootstrap.WithPoolOptions(db.DefaultWorkerOptions()))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
