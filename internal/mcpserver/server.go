// Package mcpserver exposes search and indexing as MCP tools, following the
// registration pattern of an mcp.Server with typed AddTool handlers: a thin
// adapter over the SearchEngine and Indexer, no business logic duplicated.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contextweaver/contextweaver/internal/embed"
	"github.com/contextweaver/contextweaver/internal/index"
	"github.com/contextweaver/contextweaver/internal/scanner"
	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/pkg/version"
)

// Server bridges AI clients (editors, agents) to the search engine and
// indexing pipeline over the MCP protocol.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	scanner  *scanner.Scanner
	indexer  *index.Indexer
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewServer builds an MCP server. scanner/indexer may be nil to run in a
// search-only configuration (e.g. against an index built out-of-process).
func NewServer(engine *search.Engine, sc *scanner.Scanner, ix *index.Indexer, embedder embed.Embedder) (*Server, error) {
	if engine == nil {
		return nil, errors.New("mcpserver: search engine is required")
	}

	s := &Server{
		engine:   engine,
		scanner:  sc,
		indexer:  ix,
		embedder: embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "contextweaver",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP SDK server for transport wiring.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid (BM25 + semantic) search over the indexed project, returning a context pack of the most relevant file segments.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index",
		Description: "Scan the project for added/modified/deleted files, chunk changed content, and (re)embed it into the vector and full-text indexes.",
	}, s.handleIndex)

	s.logger.Debug("mcpserver: registered tools", slog.Int("count", 2))
}

// SearchInput is the search tool's input schema.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
}

// SearchOutput is the search tool's output schema.
type SearchOutput struct {
	Files []PackedFileOutput `json:"files" jsonschema:"files contributing matched segments, ranked by relevance"`
}

// PackedFileOutput is one file's packed segments.
type PackedFileOutput struct {
	FilePath string            `json:"file_path"`
	Segments []SegmentOutput   `json:"segments"`
}

// SegmentOutput is one packed text segment within a file.
type SegmentOutput struct {
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Breadcrumb string  `json:"breadcrumb,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("mcpserver: query is required")
	}

	pack, err := s.engine.BuildContextPack(ctx, input.Query)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("mcpserver: search: %w", err)
	}

	out := SearchOutput{Files: make([]PackedFileOutput, 0, len(pack.Files))}
	for _, f := range pack.Files {
		pf := PackedFileOutput{FilePath: f.FilePath, Segments: make([]SegmentOutput, 0, len(f.Segments))}
		for _, seg := range f.Segments {
			pf.Segments = append(pf.Segments, SegmentOutput{
				StartLine: seg.StartLine, EndLine: seg.EndLine, Text: seg.Text,
				Score: seg.Score, Breadcrumb: seg.Breadcrumb,
			})
		}
		out.Files = append(out.Files, pf)
	}
	return nil, out, nil
}

// IndexInput is the index tool's input schema.
type IndexInput struct {
	RootPath string `json:"root_path" jsonschema:"absolute path to the project root to scan"`
}

// IndexOutput is the index tool's output schema.
type IndexOutput struct {
	Added     int `json:"added"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	Indexed   int `json:"indexed"`
}

func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, IndexOutput, error) {
	if s.scanner == nil || s.indexer == nil {
		return nil, IndexOutput{}, errors.New("mcpserver: index tool unavailable in search-only mode")
	}
	if input.RootPath == "" {
		return nil, IndexOutput{}, errors.New("mcpserver: root_path is required")
	}

	dims := 0
	if s.embedder != nil {
		dims = s.embedder.Dimensions()
	}
	stats, work, err := s.scanner.Scan(ctx, input.RootPath, scanner.Options{EmbeddingDimensions: dims})
	if err != nil {
		return nil, IndexOutput{}, fmt.Errorf("mcpserver: scan: %w", err)
	}

	result, err := s.indexer.Index(ctx, work)
	if err != nil {
		return nil, IndexOutput{}, fmt.Errorf("mcpserver: index: %w", err)
	}

	return nil, IndexOutput{
		Added: stats.Added, Modified: stats.Modified, Unchanged: stats.Unchanged,
		Deleted: stats.Deleted, Skipped: stats.Skipped, Errors: stats.Errors + result.Errors,
		Indexed: result.Indexed,
	}, nil
}
