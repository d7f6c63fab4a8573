// Package cmd provides the CLI commands for soberano.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soberano/soberano/internal/config"
	"github.com/soberano/soberano/internal/logging"
)

var (
	configPath string
	dataDir    string
	debugMode  bool

	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the soberano CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soberano",
		Short: "Local question answering over your own documents",
		Long: `Soberano answers questions about your personal documents (PDF,
Markdown, plain text) using local models only. Nothing leaves your
machine: embeddings, retrieval, reranking and generation all run
against local endpoints.

Ingest documents with 'soberano ingest', then ask with
'soberano ask' or start the HTTP API with 'soberano serve'.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("soberano version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.soberano)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = teardown

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the process logger.
func setup(_ *cobra.Command, _ []string) error {
	if dataDir != "" {
		if err := os.Setenv("SOBERANO_DATA_DIR", dataDir); err != nil {
			return err
		}
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logCfg := logging.DefaultConfig(cfg.Logging.File)
	logCfg.Level = level

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	return nil
}

func teardown(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
