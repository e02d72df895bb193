// Package index implements the Indexer: the embedding and vector-upsert
// stage that consumes the Scanner's work-list and keeps the vector store
// and chunk full-text index in sync with each file's current content hash.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contextweaver/contextweaver/internal/chunk"
	"github.com/contextweaver/contextweaver/internal/embed"
	"github.com/contextweaver/contextweaver/internal/scanner"
	"github.com/contextweaver/contextweaver/internal/store"
)

// EmbedBatchSize caps how many chunk texts are sent to the embedder in one
// call, independent of the embedder's own internal batching.
const EmbedBatchSize = 64

// Indexer generates embeddings for a Scanner's work-list, writes vector and
// chunk-FTS rows, and marks each file's vectors as durably written once its
// upsert has committed. A crash between the vector upsert and the
// vector_index_hash commit leaves that file's hash mismatched; the next
// scan reports it unchanged but re-enqueues it here (self-healing).
type Indexer struct {
	rowStore    store.RowStore
	vectorStore store.VectorStore
	embedder    embed.Embedder
	splitter    *chunk.SemanticSplitter
}

// NewIndexer binds an Indexer to the stores, embedder, and chunker it will
// drive. splitter is used only to re-derive chunks for self-healing entries
// that arrive from the Scanner without precomputed chunks.
func NewIndexer(rowStore store.RowStore, vectorStore store.VectorStore, embedder embed.Embedder, splitter *chunk.SemanticSplitter) *Indexer {
	return &Indexer{rowStore: rowStore, vectorStore: vectorStore, embedder: embedder, splitter: splitter}
}

// Result summarizes one Index call.
type Result struct {
	Indexed int
	Deleted int
	Errors  int
}

// Index processes the Scanner's work-list: added/modified/self-healing
// entries are embedded and upserted; deletion entries purge their vector
// and chunk-FTS rows.
func (ix *Indexer) Index(ctx context.Context, work []*scanner.FileWork) (*Result, error) {
	result := &Result{}

	var deletedPaths []string
	var upserts []*store.FileUpsert
	type pending struct {
		path string
		hash string
	}
	var pendingHashes []pending

	for _, w := range work {
		if w.Status == scanner.StatusDeleted {
			deletedPaths = append(deletedPaths, w.Path)
			continue
		}

		chunks := w.Chunks
		if chunks == nil {
			// Self-healing entry: the Scanner didn't re-chunk an
			// unchanged file, so load its content and chunk it now.
			var err error
			chunks, err = ix.rechunk(ctx, w.Path, w.Language)
			if err != nil {
				result.Errors++
				slog.Warn("indexer: self-heal rechunk failed", slog.String("path", w.Path), slog.String("error", err.Error()))
				continue
			}
		}

		records, err := ix.embedChunks(ctx, w.Path, w.Hash, w.Language, chunks)
		if err != nil {
			result.Errors++
			slog.Warn("indexer: embedding failed", slog.String("path", w.Path), slog.String("error", err.Error()))
			continue
		}

		upserts = append(upserts, &store.FileUpsert{Path: w.Path, NewHash: w.Hash, Records: records})
		pendingHashes = append(pendingHashes, pending{path: w.Path, hash: w.Hash})

		if err := ix.writeChunkFTS(ctx, w.Path, records); err != nil {
			result.Errors++
			slog.Warn("indexer: chunk FTS write failed", slog.String("path", w.Path), slog.String("error", err.Error()))
		}
	}

	if len(upserts) > 0 {
		if err := ix.vectorStore.BatchUpsertFiles(ctx, upserts); err != nil {
			return result, fmt.Errorf("indexer: batch upsert vectors: %w", err)
		}
		for _, p := range pendingHashes {
			if err := ix.rowStore.SetVectorIndexHash(ctx, p.path, p.hash); err != nil {
				return result, fmt.Errorf("indexer: set vector_index_hash for %s: %w", p.path, err)
			}
		}
		result.Indexed = len(upserts)
	}

	if len(deletedPaths) > 0 {
		if err := ix.vectorStore.DeleteFiles(ctx, deletedPaths); err != nil {
			return result, fmt.Errorf("indexer: delete vectors: %w", err)
		}
		if err := ix.rowStore.DeleteChunkFTS(ctx, deletedPaths); err != nil {
			return result, fmt.Errorf("indexer: delete chunk FTS: %w", err)
		}
		result.Deleted = len(deletedPaths)
	}

	return result, nil
}

func (ix *Indexer) rechunk(ctx context.Context, path, language string) ([]*chunk.ProcessedChunk, error) {
	contents, err := ix.rowStore.GetFileContents(ctx, []string{path})
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	content, ok := contents[path]
	if !ok {
		return nil, fmt.Errorf("no stored content for %s", path)
	}
	chunks, err := ix.splitter.ChunkSource(ctx, path, content, language)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	return chunks, nil
}

// embedChunks generates embeddings for every chunk's vector_text in
// EmbedBatchSize-sized windows and builds the corresponding ChunkRecords.
func (ix *Indexer) embedChunks(ctx context.Context, path, hash, language string, chunks []*chunk.ProcessedChunk) ([]*store.ChunkRecord, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	records := make([]*store.ChunkRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += EmbedBatchSize {
		end := min(start+EmbedBatchSize, len(chunks))
		window := chunks[start:end]

		texts := make([]string, len(window))
		for i, c := range window {
			texts[i] = c.VectorText
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d) of %s: %w", start, end, path, err)
		}
		if len(vectors) != len(window) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks of %s", len(vectors), len(window), path)
		}

		for i, c := range window {
			records = append(records, &store.ChunkRecord{
				FilePath:    path,
				FileHash:    hash,
				ChunkIndex:  c.ChunkIndex,
				Vector:      vectors[i],
				DisplayCode: c.DisplayCode,
				VectorText:  c.VectorText,
				Breadcrumb:  c.Breadcrumb,
				Language:    language,
				StartIndex:  c.StartIndex,
				EndIndex:    c.EndIndex,
				RawStart:    c.RawStart,
				RawEnd:      c.RawEnd,
				VecStart:    c.VecStart,
				VecEnd:      c.VecEnd,
			})
		}
	}
	return records, nil
}

// writeChunkFTS mirrors one chunk_index-level FTS row per chunk (breadcrumb
// + display_code), replacing whatever rows existed for the path before.
func (ix *Indexer) writeChunkFTS(ctx context.Context, path string, records []*store.ChunkRecord) error {
	if err := ix.rowStore.DeleteChunkFTS(ctx, []string{path}); err != nil {
		return fmt.Errorf("clear chunk FTS: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]*store.ChunkFTSRow, len(records))
	for i, r := range records {
		rows[i] = &store.ChunkFTSRow{
			ChunkID:    r.ChunkID(),
			FilePath:   r.FilePath,
			ChunkIndex: r.ChunkIndex,
			Breadcrumb: r.Breadcrumb,
			Content:    r.DisplayCode,
		}
	}
	return ix.rowStore.UpsertChunkFTS(ctx, path, rows)
}
