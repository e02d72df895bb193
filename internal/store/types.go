// Package store persists file metadata, full-text indexes, and chunk
// vectors for an indexed project: a row store (SQLite, WAL) backing
// files/metadata/files_fts/chunks_fts, and a vector store keyed by
// (file_path, file_hash, chunk_index) with monotonic upsert semantics.
package store

import (
	"context"
	"fmt"
)

// FileRecord is the persisted row for one project-relative, /-normalized
// file path.
type FileRecord struct {
	Path            string // primary key, project-relative, / separated
	Hash            string // SHA-256 hex of UTF-8 content after encoding normalization
	MTime           int64  // unix millis
	Size            int64
	Content         *string // nil for large/binary/skipped files
	Language        string
	VectorIndexHash *string // hash for which vectors are known durably written
}

// NeedsVectorIndex reports whether this file's vectors are missing or stale.
func (f *FileRecord) NeedsVectorIndex() bool {
	return f.VectorIndexHash == nil || *f.VectorIndexHash != f.Hash
}

// ChunkRecord is one chunk's vector-store row, keyed by
// (FilePath, FileHash, ChunkIndex).
type ChunkRecord struct {
	FilePath  string
	FileHash  string
	ChunkIndex int

	Vector []float32

	DisplayCode string
	VectorText  string
	Breadcrumb  string
	Language    string

	StartIndex int // semantic node start, char offset (UTF-16 domain)
	EndIndex   int

	RawStart int // non-overlapping coverage
	RawEnd   int

	VecStart int // possibly-overlapping embed window
	VecEnd   int
}

// ChunkID is the vector store's unique identity for a chunk record. It
// includes FileHash so stale/current rows for the same chunk index can be
// told apart while coexisting during a monotonic upsert.
func (c *ChunkRecord) ChunkID() string {
	return fmt.Sprintf("%s::%s::%d", c.FilePath, c.FileHash, c.ChunkIndex)
}

// FileUpsert is one file's monotonic vector-store update: insert Records
// (stamped with NewHash) then delete any existing row for Path whose
// FileHash differs from NewHash.
type FileUpsert struct {
	Path    string
	NewHash string
	Records []*ChunkRecord
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	Chunk    *ChunkRecord
	Distance float32
	Score    float32 // similarity = 1/(1+distance)
}

// RowStore persists FileRecords and backs the two FTS tables.
type RowStore interface {
	// UpsertFiles writes added/modified files (content + NULL vector_index_hash)
	// and mirrors files_fts in the same transaction.
	UpsertFiles(ctx context.Context, files []*FileRecord) error

	// TouchFiles updates mtime for files whose content is unchanged.
	TouchFiles(ctx context.Context, paths []string, mtime int64) error

	// DeleteFiles removes rows (and purges files_fts) for paths absent from
	// the latest crawl.
	DeleteFiles(ctx context.Context, paths []string) error

	// TruncateFiles drops all rows from files/files_fts/chunks_fts; used
	// when an embedding-dimension mismatch forces a full reindex.
	TruncateFiles(ctx context.Context) error

	// SetVectorIndexHash marks a file's vectors as durably written for hash.
	SetVectorIndexHash(ctx context.Context, path, hash string) error

	// GetFile returns the current row for path, or nil if absent.
	GetFile(ctx context.Context, path string) (*FileRecord, error)

	// ListFiles returns all known files (used to load the in-memory crawl
	// comparison set at scan start).
	ListFiles(ctx context.Context) ([]*FileRecord, error)

	// GetFileContents returns the stored content for a batch of paths, in
	// one query, used by the ContextPacker.
	GetFileContents(ctx context.Context, paths []string) (map[string]string, error)

	// UpsertChunkFTS replaces path's chunks_fts rows with one row per chunk.
	UpsertChunkFTS(ctx context.Context, path string, rows []*ChunkFTSRow) error

	// DeleteChunkFTS purges chunks_fts rows for the given file paths.
	DeleteChunkFTS(ctx context.Context, paths []string) error

	// SearchFilesFTS runs the two-pass BM25 strategy over files_fts.
	SearchFilesFTS(ctx context.Context, tokens []string, limit int) ([]*FTSResult, error)

	// SearchChunksFTS runs the two-pass BM25 strategy over chunks_fts.
	SearchChunksFTS(ctx context.Context, tokens []string, limit int) ([]*FTSResult, error)

	// GetMetadata/SetMetadata back the Metadata KV table.
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error

	Close() error
}

// ChunkFTSRow is one chunks_fts row.
type ChunkFTSRow struct {
	ChunkID    string
	FilePath   string
	ChunkIndex int
	Breadcrumb string
	Content    string // display_code
}

// FTSResult is a single BM25 hit from either FTS table.
type FTSResult struct {
	// DocID is the chunk_id for chunks_fts hits, or the file path for
	// files_fts hits.
	DocID      string
	FilePath   string
	ChunkIndex int
	Breadcrumb string
	Content    string
	Score      float64 // -bm25(table), higher is better
}

// VectorStore stores ChunkRecords' vectors keyed by
// (file_path, file_hash, chunk_index) with monotonic upsert semantics.
type VectorStore interface {
	// UpsertFile performs one file's monotonic update: insert new records
	// first, then delete rows where file_path=p AND file_hash≠newHash.
	UpsertFile(ctx context.Context, upsert *FileUpsert) error

	// BatchUpsertFiles groups files into sub-batches of ≤50 files and
	// ≤5000 records, applying UpsertFile's insert-then-delete ordering per
	// sub-batch.
	BatchUpsertFiles(ctx context.Context, files []*FileUpsert) error

	// DeleteFiles purges all chunk records for the given file paths.
	DeleteFiles(ctx context.Context, paths []string) error

	// Search returns the k nearest neighbors to query, optionally
	// restricted by filter (nil means unfiltered).
	Search(ctx context.Context, query []float32, k int, filter func(*ChunkRecord) bool) ([]*VectorResult, error)

	// GetFileChunks returns path's chunks sorted by ChunkIndex.
	GetFileChunks(ctx context.Context, path string) ([]*ChunkRecord, error)

	// GetFilesChunks batches GetFileChunks over multiple paths.
	GetFilesChunks(ctx context.Context, paths []string) (map[string][]*ChunkRecord, error)

	Count() int
	Clear(ctx context.Context) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch, which triggers a
// full reindex rather than surfacing as a user-visible error.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// MetadataKeyEmbeddingDimensions is the Metadata KV key for the current
// embedding dimension; a change triggers a full reindex.
const MetadataKeyEmbeddingDimensions = "embedding_dimensions"

// VectorStoreConfig configures the HNSW-backed vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" (default) or "l2"
	M              int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// MaxFilesPerSubBatch and MaxRecordsPerSubBatch bound a single
// BatchUpsertFiles sub-batch.
const (
	MaxFilesPerSubBatch   = 50
	MaxRecordsPerSubBatch = 5000
)
