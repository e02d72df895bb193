package contextpack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/internal/store"
)

func newTestRows(t *testing.T, files map[string]string) store.RowStore {
	t.Helper()
	rows, err := store.NewSQLiteRowStore("")
	require.NoError(t, err)
	t.Cleanup(func() { rows.Close() })

	ctx := context.Background()
	for path, content := range files {
		c := content
		require.NoError(t, rows.UpsertFiles(ctx, []*store.FileRecord{{
			Path: path, Hash: "h", MTime: 1, Size: int64(len(content)), Content: &c, Language: "go",
		}}))
	}
	return rows
}

func chunk(path string, idx, start, end int, breadcrumb string) *store.ChunkRecord {
	return &store.ChunkRecord{FilePath: path, FileHash: "h", ChunkIndex: idx, RawStart: start, RawEnd: end, Breadcrumb: breadcrumb}
}

func TestPacker_SingleFileSingleSegment(t *testing.T) {
	content := "line1\nline2\nline3\n"
	rows := newTestRows(t, map[string]string{"a.go": content})
	p := New(rows)

	out, err := p.Pack(context.Background(), []search.ScoredChunk{
		{Chunk: chunk("a.go", 0, 0, 11, ""), Score: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Segments, 1)
	assert.Equal(t, content[0:11], out[0].Segments[0].Text)
	assert.Equal(t, 1, out[0].Segments[0].StartLine)
}

func TestPacker_MergesOverlappingIntervals(t *testing.T) {
	content := "0123456789"
	rows := newTestRows(t, map[string]string{"a.go": content})
	p := New(rows)

	out, err := p.Pack(context.Background(), []search.ScoredChunk{
		{Chunk: chunk("a.go", 0, 0, 5, ""), Score: 0.5},
		{Chunk: chunk("a.go", 1, 3, 8, ""), Score: 0.9},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Segments, 1, "overlapping spans [0,5) and [3,8) must merge into one segment")
	assert.Equal(t, content[0:8], out[0].Segments[0].Text)
	assert.Equal(t, 0.9, out[0].Segments[0].Score, "merged segment keeps the max score")
}

func TestPacker_CapsSegmentsPerFile(t *testing.T) {
	content := "abcdefghijklmnopqrstuvwxyz0123456789"
	rows := newTestRows(t, map[string]string{"a.go": content})
	p := New(rows)

	var scored []search.ScoredChunk
	// Five disjoint, non-adjacent spans so none merge.
	spans := [][2]int{{0, 2}, {4, 6}, {8, 10}, {12, 14}, {16, 18}}
	for i, sp := range spans {
		scored = append(scored, search.ScoredChunk{Chunk: chunk("a.go", i, sp[0], sp[1], ""), Score: float64(i)})
	}

	out, err := p.Pack(context.Background(), scored)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, len(out[0].Segments), MaxSegmentsPerFile)
}

func TestPacker_StopsAtCharBudget(t *testing.T) {
	bigLen := MaxTotalChars + 100
	big := make([]byte, bigLen)
	for i := range big {
		big[i] = 'x'
	}
	content := string(big)
	rows := newTestRows(t, map[string]string{"a.go": content, "b.go": content})
	p := New(rows)

	out, err := p.Pack(context.Background(), []search.ScoredChunk{
		{Chunk: chunk("a.go", 0, 0, bigLen, ""), Score: 1.0},
		{Chunk: chunk("b.go", 0, 0, bigLen, ""), Score: 0.9},
	})
	require.NoError(t, err)

	assert.Len(t, out, 1, "second file's segment must not be added once the first already exceeded the budget")
	require.Len(t, out[0].Segments, 1)
	assert.Equal(t, bigLen, len(out[0].Segments[0].Text))
}
