// Command ogrre-admin runs maintenance tasks against the record store.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/config"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/services"
)

var envFile string

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ogrre-admin",
		Short:         "Maintenance commands for the well record review backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(cleanCommand())
	rootCmd.AddCommand(importProcessorsCommand())
	rootCmd.AddCommand(releaseLocksCommand())
	rootCmd.AddCommand(historyCommand())
	return rootCmd
}

func initConfig() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("No .env file loaded.", "path", envFile, "error", err)
	}
}

// openRuntime loads configuration from the environment and connects the store.
func openRuntime(ctx context.Context) (*services.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return services.NewRuntime(ctx, cfg)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
