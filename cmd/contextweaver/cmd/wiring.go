package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/contextweaver/contextweaver/internal/chunk"
	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/embed"
	"github.com/contextweaver/contextweaver/internal/graph"
	"github.com/contextweaver/contextweaver/internal/contextpack"
	"github.com/contextweaver/contextweaver/internal/index"
	"github.com/contextweaver/contextweaver/internal/layout"
	"github.com/contextweaver/contextweaver/internal/scanner"
	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/internal/store"
)

// components bundles the wiring shared by serve/index/search/init: one row
// store and vector store per project, opened against the on-disk layout
// derived from the project's id.
type components struct {
	cfg      *config.Config
	rows     *store.SQLiteRowStore
	vectors  *store.HNSWVectorStore
	embedder embed.Embedder
	splitter *chunk.SemanticSplitter
}

func (c *components) Close() {
	if c.rows != nil {
		_ = c.rows.Close()
	}
	if c.vectors != nil {
		_ = c.vectors.Close()
	}
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
}

func buildEmbedder(root string) (embed.Embedder, error) {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	defaults := embed.HTTPConfig{
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	}
	return embed.NewFromEnv(defaults)
}

func buildReranker(cfg *config.Config) search.Reranker {
	defaults := search.HTTPRerankerConfig{
		BaseURL: cfg.Reranker.BaseURL,
		APIKey:  cfg.Reranker.APIKey,
		Model:   cfg.Reranker.Model,
	}
	return search.RerankerFromEnv(defaults)
}

// openComponents wires the row store, vector store, embedder, and chunker
// for a project rooted at root. The embedder is optional: when it can't be
// built (no CONTEXTWEAVER_EMBEDDING_BASE_URL), search falls back to
// lexical-only recall rather than failing to open.
func openComponents(root string) (*components, error) {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	projectID, err := scanner.ProjectID(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project id: %w", err)
	}

	dbPath, err := layout.DBPath(projectID)
	if err != nil {
		return nil, fmt.Errorf("resolving db path: %w", err)
	}
	rows, err := store.NewSQLiteRowStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening row store: %w", err)
	}

	embedder, embErr := buildEmbedder(root)
	dims := cfg.Embeddings.Dimensions
	if embErr == nil {
		dims = embedder.Dimensions()
	} else {
		embedder = nil
	}

	vectorDir, err := layout.VectorDir(projectID)
	if err != nil {
		return nil, fmt.Errorf("resolving vector dir: %w", err)
	}
	vectors, err := store.OpenHNSWVectorStore(vectorDir, store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	registry := chunk.DefaultRegistry()
	splitterCfg := chunk.DefaultSplitterConfig()
	if cfg.Search.ChunkSize > 0 {
		splitterCfg.MaxChunkSize = cfg.Search.ChunkSize
		splitterCfg.MaxRawChars = 4 * cfg.Search.ChunkSize
	}
	if cfg.Search.ChunkOverlap > 0 {
		splitterCfg.ChunkOverlap = cfg.Search.ChunkOverlap
	}
	splitter := chunk.NewSemanticSplitter(registry, splitterCfg)

	return &components{cfg: cfg, rows: rows, vectors: vectors, embedder: embedder, splitter: splitter}, nil
}

func (c *components) buildEngine() *search.Engine {
	return &search.Engine{
		Rows:     c.rows,
		Vectors:  c.vectors,
		Embedder: c.embedder,
		Reranker: buildReranker(c.cfg),
		Expander: graph.New(c.rows, c.vectors),
		Packer:   contextpack.New(c.rows),
	}
}

func (c *components) buildScanner() *scanner.Scanner {
	return scanner.NewScanner(c.rows, c.splitter)
}

func (c *components) buildIndexer() *index.Indexer {
	return index.NewIndexer(c.rows, c.vectors, c.embedder, c.splitter)
}

func dataDirFor(root string) string {
	return filepath.Join(root, ".contextweaver")
}
