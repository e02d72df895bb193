package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextweaver/contextweaver/internal/chunk"
	"github.com/contextweaver/contextweaver/internal/scanner"
	"github.com/contextweaver/contextweaver/internal/store"
)

// stubEmbedder returns a deterministic unit vector per call, enough to
// exercise the Indexer's batching and upsert wiring without a network.
type stubEmbedder struct {
	dims      int
	calls     int
	callSizes []int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	s.callSizes = append(s.callSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int                  { return s.dims }
func (s *stubEmbedder) ModelName() string                { return "stub" }
func (s *stubEmbedder) Available(ctx context.Context) bool { return true }
func (s *stubEmbedder) Close() error                     { return nil }

func newTestIndexer(t *testing.T, embedder *stubEmbedder) (*Indexer, *store.SQLiteRowStore, store.VectorStore) {
	t.Helper()
	rs, err := store.NewSQLiteRowStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	vs := store.NewHNSWVectorStore(store.DefaultVectorStoreConfig(embedder.dims))
	t.Cleanup(func() { _ = vs.Close() })
	splitter := chunk.NewSemanticSplitter(chunk.DefaultRegistry(), chunk.DefaultSplitterConfig())
	t.Cleanup(splitter.Close)
	return NewIndexer(rs, vs, embedder, splitter), rs, vs
}

func sampleChunks() []*chunk.ProcessedChunk {
	return []*chunk.ProcessedChunk{
		{ChunkIndex: 0, Breadcrumb: "a.go > func f", DisplayCode: "func f() {}", VectorText: "// Context: a.go > func f\nfunc f() {}"},
		{ChunkIndex: 1, Breadcrumb: "a.go > func g", DisplayCode: "func g() {}", VectorText: "// Context: a.go > func g\nfunc g() {}"},
	}
}

func TestIndex_AddedFileIsEmbeddedAndMarkedDurable(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	ix, rs, vs := newTestIndexer(t, embedder)
	ctx := context.Background()

	require.NoError(t, rs.UpsertFiles(ctx, []*store.FileRecord{
		{Path: "a.go", Hash: "h1", MTime: 1, Size: 10, Content: strPtr("func f() {}\nfunc g() {}\n"), Language: "go"},
	}))

	work := []*scanner.FileWork{
		{Path: "a.go", Status: scanner.StatusAdded, Hash: "h1", Language: "go", Chunks: sampleChunks()},
	}
	result, err := ix.Index(ctx, work)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, result.Errors)

	rec, err := rs.GetFile(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, rec.VectorIndexHash)
	assert.Equal(t, "h1", *rec.VectorIndexHash)

	chunks, err := vs.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestIndex_DeletedFilePurgesVectorsAndFTS(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	ix, rs, vs := newTestIndexer(t, embedder)
	ctx := context.Background()

	require.NoError(t, rs.UpsertFiles(ctx, []*store.FileRecord{
		{Path: "a.go", Hash: "h1", MTime: 1, Size: 10, Content: strPtr("x"), Language: "go"},
	}))
	_, err := ix.Index(ctx, []*scanner.FileWork{
		{Path: "a.go", Status: scanner.StatusAdded, Hash: "h1", Language: "go", Chunks: sampleChunks()},
	})
	require.NoError(t, err)

	result, err := ix.Index(ctx, []*scanner.FileWork{{Path: "a.go", Status: scanner.StatusDeleted}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	chunks, err := vs.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndex_SelfHealingEntryReChunksFromStoredContent(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	ix, rs, vs := newTestIndexer(t, embedder)
	ctx := context.Background()

	require.NoError(t, rs.UpsertFiles(ctx, []*store.FileRecord{
		{Path: "a.go", Hash: "h1", MTime: 1, Size: 10, Content: strPtr("package main\n\nfunc f() {}\n"), Language: "go"},
	}))

	// Self-healing entries arrive with no precomputed chunks.
	result, err := ix.Index(ctx, []*scanner.FileWork{
		{Path: "a.go", Status: scanner.StatusUnchanged, Hash: "h1", Language: "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)

	rec, err := rs.GetFile(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, rec.VectorIndexHash)
	assert.Equal(t, "h1", *rec.VectorIndexHash)

	chunks, err := vs.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestIndex_EmbedsInBatchesOfEmbedBatchSize(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	ix, rs, _ := newTestIndexer(t, embedder)
	ctx := context.Background()

	var chunks []*chunk.ProcessedChunk
	for i := 0; i < EmbedBatchSize+5; i++ {
		chunks = append(chunks, &chunk.ProcessedChunk{ChunkIndex: i, Breadcrumb: "a.go", DisplayCode: "x", VectorText: "x"})
	}
	require.NoError(t, rs.UpsertFiles(ctx, []*store.FileRecord{
		{Path: "a.go", Hash: "h1", MTime: 1, Size: 10, Content: strPtr("x"), Language: "go"},
	}))
	_, err := ix.Index(ctx, []*scanner.FileWork{
		{Path: "a.go", Status: scanner.StatusAdded, Hash: "h1", Language: "go", Chunks: chunks},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
	assert.Equal(t, []int{EmbedBatchSize, 5}, embedder.callSizes)
}

func strPtr(s string) *string { return &s }
