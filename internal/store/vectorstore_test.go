package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkRec(path, hash string, idx int, vec []float32) *ChunkRecord {
	return &ChunkRecord{FilePath: path, FileHash: hash, ChunkIndex: idx, Vector: vec, DisplayCode: "x"}
}

func TestVectorStore_UpsertFileThenSearch(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(4))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path:    "a.go",
		NewHash: "h1",
		Records: []*ChunkRecord{chunkRec("a.go", "h1", 0, []float32{1, 0, 0, 0})},
	}))

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].Chunk.FilePath)
}

func TestVectorStore_MonotonicUpsertDeletesStaleHash(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(4))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h1",
		Records: []*ChunkRecord{chunkRec("a.go", "h1", 0, []float32{1, 0, 0, 0}), chunkRec("a.go", "h1", 1, []float32{0, 1, 0, 0})},
	}))
	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h2",
		Records: []*ChunkRecord{chunkRec("a.go", "h2", 0, []float32{0, 0, 1, 0})},
	}))

	chunks, err := s.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1, "stale-hash records must be removed after the new hash's records are inserted")
	assert.Equal(t, "h2", chunks[0].FileHash)
}

func TestVectorStore_GetFileChunksSortedByIndex(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(2))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h1",
		Records: []*ChunkRecord{
			chunkRec("a.go", "h1", 2, []float32{1, 0}),
			chunkRec("a.go", "h1", 0, []float32{0, 1}),
			chunkRec("a.go", "h1", 1, []float32{1, 1}),
		},
	}))

	chunks, err := s.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].ChunkIndex, chunks[1].ChunkIndex, chunks[2].ChunkIndex})
}

func TestVectorStore_BatchUpsertSubBatching(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(2))
	defer s.Close()
	ctx := context.Background()

	var files []*FileUpsert
	for i := 0; i < 120; i++ {
		path := "f" + strconv.Itoa(i) + ".go"
		files = append(files, &FileUpsert{
			Path: path, NewHash: "h1",
			Records: []*ChunkRecord{chunkRec(path, "h1", 0, []float32{float32(i), 0})},
		})
	}

	require.NoError(t, s.BatchUpsertFiles(ctx, files))
	assert.Equal(t, 120, s.Count())
}

func TestVectorStore_DeleteFiles(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(2))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h1",
		Records: []*ChunkRecord{chunkRec("a.go", "h1", 0, []float32{1, 0})},
	}))
	require.NoError(t, s.DeleteFiles(ctx, []string{"a.go"}))

	chunks, err := s.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, s.Count())
}

func TestVectorStore_OpenPersistsAcrossCloseAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors.lance")
	ctx := context.Background()

	s, err := OpenHNSWVectorStore(dir, DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h1",
		Records: []*ChunkRecord{
			chunkRec("a.go", "h1", 0, []float32{1, 0, 0, 0}),
			chunkRec("a.go", "h1", 1, []float32{0, 1, 0, 0}),
		},
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenHNSWVectorStore(dir, DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Count())
	results, err := reopened.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.go", results[0].Chunk.FilePath)

	chunks, err := reopened.GetFileChunks(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

func TestVectorStore_OpenEmptyDirStartsFresh(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors.lance")

	s, err := OpenHNSWVectorStore(dir, DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Count())
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	s := NewHNSWVectorStore(DefaultVectorStoreConfig(4))
	defer s.Close()
	ctx := context.Background()

	err := s.UpsertFile(ctx, &FileUpsert{
		Path: "a.go", NewHash: "h1",
		Records: []*ChunkRecord{chunkRec("a.go", "h1", 0, []float32{1, 0})},
	})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}
