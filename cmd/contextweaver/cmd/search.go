package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/output"
	"github.com/contextweaver/contextweaver/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		format string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed project",
		Long: `Search the indexed project using hybrid search: BM25 keyword matching
and semantic similarity, fused with Reciprocal Rank Fusion, then packed
into contiguous file segments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query, format string) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	c, err := openComponents(root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer c.Close()

	pack, err := c.buildEngine().BuildContextPack(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pack)
	}

	return printPack(output.New(cmd.OutOrStdout()), pack)
}

func printPack(out *output.Writer, pack *search.ContextPack) error {
	if len(pack.Files) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", pack.Query))
		return nil
	}

	out.Statusf("🔍", "Found matches in %d files for %q:", len(pack.Files), pack.Query)
	out.Newline()

	for _, f := range pack.Files {
		out.Status("", f.FilePath)
		for _, seg := range f.Segments {
			out.Status("", fmt.Sprintf("  lines %d-%d (score: %.3f)", seg.StartLine, seg.EndLine, seg.Score))
			for _, line := range firstLines(seg.Text, 3) {
				out.Status("", "    "+line)
			}
		}
		out.Newline()
	}
	return nil
}

func firstLines(s string, n int) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
