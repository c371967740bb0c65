// Package cmd provides the CLI commands for ragd.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/magic-research/ragd/internal/config"
	"github.com/magic-research/ragd/internal/logging"
	"github.com/magic-research/ragd/pkg/version"
)

var (
	configPath  string
	debugMode   bool
	offlineMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragd",
		Short: "Question answering over your own documents",
		Long: `ragd ingests PDF, text, and markdown documents into a local vector
index and answers questions about them, grounding every answer in the
retrieved passages and citing its sources.

Generation falls back across providers (OpenAI, Groq, Gemini) in order,
so a single provider outage does not take the service down.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ragd.yaml if present)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ragd/logs/")
	cmd.PersistentFlags().BoolVar(&offlineMode, "offline", false, "Use the static embedder (no embedding API calls)")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.FilePath = ""

	// The logging section of the config (and RAGD_LOG_LEVEL/RAGD_LOG_FILE)
	// drives the handler. A config load failure falls back to the defaults
	// here; the command itself reports the error.
	if cfg, err := config.Load(configPath); err == nil {
		logCfg.Level = cfg.Logging.Level
		logCfg.FilePath = cfg.Logging.File
	}
	if debugMode {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath()
		}
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig loads configuration honoring the --config and --debug flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	if offlineMode {
		cfg.Embedding.Provider = "static"
	}
	return cfg, nil
}

func commandLogger() *slog.Logger {
	return slog.Default()
}
