package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/lock"
	"github.com/contextweaver/contextweaver/internal/output"
	"github.com/contextweaver/contextweaver/internal/scanner"
)

func newIndexCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Scan and index a project",
		Long: `Crawl the project, chunk changed files, and (re)embed them into the
vector and full-text indexes. Run with no arguments to index the current
project root.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			resolved, err := config.FindProjectRoot(root)
			if err != nil {
				resolved, _ = filepath.Abs(root)
			}
			return runIndexCmd(cmd, resolved, reindex)
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Force a full reindex even if an index exists")

	return cmd
}

func runIndexCmd(cmd *cobra.Command, root string, reindex bool) error {
	out := output.New(cmd.OutOrStdout())
	out.Statusf("📁", "Indexing %s", root)

	if err := runIndex(cmd.Context(), root, reindex); err != nil {
		return err
	}

	out.Success("Index complete")
	return nil
}

// runIndex scans root and indexes whatever work the scan produces. When
// reindex is set, it forces a full re-embed regardless of the persisted
// vector_index_hash by reporting an impossible embedding dimension so the
// scanner's mismatch check always trips.
func runIndex(ctx context.Context, root string, reindex bool) error {
	projectID, err := scanner.ProjectID(root)
	if err != nil {
		return fmt.Errorf("resolving project id: %w", err)
	}

	l, err := lock.ForProject(projectID)
	if err != nil {
		return fmt.Errorf("resolving index lock path: %w", err)
	}
	if err := l.Acquire("index"); err != nil {
		return fmt.Errorf("acquiring index lock: %w", err)
	}
	defer func() { _ = l.Release() }()

	slog.Debug("index run starting", slog.String("operation_id", l.OperationID()), slog.String("root", root))

	c, err := openComponents(root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer c.Close()

	opts := scanner.Options{}
	if c.embedder != nil {
		opts.EmbeddingDimensions = c.embedder.Dimensions()
	}
	if reindex {
		opts.EmbeddingDimensions = -1
	}

	_, work, err := c.buildScanner().Scan(ctx, root, opts)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	if c.embedder == nil {
		return nil
	}

	if _, err := c.buildIndexer().Index(ctx, work); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
