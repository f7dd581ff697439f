// Package cmd provides the CLI commands for semtools.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/run-llama/semtools/internal/config"
	"github.com/run-llama/semtools/internal/embed"
	"github.com/run-llama/semtools/internal/logging"
	"github.com/run-llama/semtools/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command for the semtools CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "semtools",
		Short: "Semantic line search over plain-text files",
		Long: `semtools ranks lines across a set of files by semantic similarity
to a natural-language query.

Run without a workspace to embed files in memory for a single search.
Set SEMTOOLS_WORKSPACE to persist per-line embeddings so repeat
searches over unchanged files skip re-embedding.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate("semtools version {{.Version}}\n")

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.semtools/logs/")
	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newSearchCmd())
	root.AddCommand(newWorkspaceCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg = logging.DebugConfig()
		cfg.WriteToStderr = false
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging is diagnostic, not load-bearing: fall back to discarding
		// rather than failing every command when the log directory can't
		// be created.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// newConfiguredEmbedder builds an embedder using the provider and model
// from config.Load (~/.config/semtools/config.yaml, then .semtools.yaml
// in the working directory, then SEMTOOLS_* variables), falling back to
// built-in defaults when loading fails. SEMTOOLS_EMBEDDER still takes
// precedence inside embed.NewEmbedder; there are no embedder flags.
func newConfiguredEmbedder(ctx context.Context) (embed.Embedder, error) {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}

	cfg, err := config.Load(dir)
	if err != nil {
		cfg = config.NewConfig()
	}

	provider := embed.ProviderStatic
	if cfg.Embeddings.Provider != "" {
		provider = embed.ParseProvider(cfg.Embeddings.Provider)
	}
	return embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
}
