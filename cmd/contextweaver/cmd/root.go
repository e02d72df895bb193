// Package cmd provides the CLI commands for ContextWeaver.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/logging"
	"github.com/contextweaver/contextweaver/internal/preflight"
	"github.com/contextweaver/contextweaver/pkg/version"
)

// Debug logging flag, set up once in PersistentPreRunE and torn down in
// PersistentPostRunE so every subcommand gets the same file-backed logger.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the contextweaver CLI.
func NewRootCmd() *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "contextweaver",
		Short: "Local-first hybrid search MCP server for codebases",
		Long: `ContextWeaver provides hybrid search (BM25 + semantic) over codebases
for AI coding assistants.

Run 'contextweaver init' in a project to configure it, then
'contextweaver serve' to start the MCP server over stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), skipCheck)
		},
	}

	cmd.SetVersionTemplate("contextweaver version {{.Version}}\n")

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.contextweaver/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLogsCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runServe implements the default no-subcommand flow: find the project,
// run pre-flight checks, index if needed, then serve over stdio. The MCP
// protocol requires stdout to carry only JSON-RPC traffic, so all status
// output here goes to the debug log, never stdout.
func runServe(ctx context.Context, skipCheck bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := dataDirFor(root)

	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		embedder, embedderErr := buildEmbedder(root)
		if embedderErr != nil {
			slog.Debug("embedder unavailable for preflight", slog.String("error", embedderErr.Error()))
		}
		results := checker.RunAll(ctx, root, embedder)
		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed - run 'contextweaver doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("failed to write preflight marker", slog.String("error", err.Error()))
		}
	} else if !skipCheck {
		slog.Debug("skipping preflight checks, marker is fresh", slog.Duration("age", preflight.MarkerAge(dataDir)))
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		slog.Info("no index found, indexing project", slog.String("root", root))
		if err := runIndex(ctx, root, false); err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
	}

	return serveStdio(ctx, root)
}
