package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_SingleFileSingleChunk(t *testing.T) {
	source := "function greet() {\n  return 'hello there friend, how is it going today';\n}\n"
	s := NewSemanticSplitter(DefaultRegistry(), DefaultSplitterConfig())
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "a.ts", source, "typescript")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, []string{"a.ts", "function greet"}, c.ContextPath)
	assert.Equal(t, 0, c.RawStart)
	assert.Equal(t, len([]rune(source)), c.RawEnd)
	assert.Equal(t, c.StartIndex, c.VecStart)
	assert.Equal(t, c.EndIndex, c.VecEnd)
}

func TestSplitter_MergesAdjacentSiblings(t *testing.T) {
	source := "function f() { return 1 }\nfunction g() { return 2 }\n"
	cfg := DefaultSplitterConfig()
	cfg.MinChunkSize = 50
	cfg.MaxChunkSize = 1000

	s := NewSemanticSplitter(DefaultRegistry(), cfg)
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "a.ts", source, "typescript")
	require.NoError(t, err)
	require.Len(t, chunks, 1, "two small adjacent functions should merge into one chunk")
	assert.Equal(t, []string{"a.ts"}, chunks[0].ContextPath)
}

func TestSplitter_CommentForwardAbsorption(t *testing.T) {
	source := "function p() { return 1; }\n/** JSDoc */\nfunction h() { return 2; }\n"
	cfg := DefaultSplitterConfig()
	// p (21 NWS) plus the JSDoc (10) fits the budget but adding h (21) does
	// not, so without absorption the JSDoc would close p's window.
	cfg.MaxChunkSize = 40
	cfg.MinChunkSize = 1
	s := NewSemanticSplitter(DefaultRegistry(), cfg)
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "a.ts", source, "typescript")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.DisplayCode, "JSDoc") && strings.Contains(c.DisplayCode, "function h") {
			found = true
		}
	}
	assert.True(t, found, "JSDoc comment should be absorbed into the chunk containing the function it documents")
}

func TestSplitter_RawSpansReconstructFile(t *testing.T) {
	source := `package main

func a() {
	println("a")
}

func b() {
	println("b")
}

func c() {
	println("c")
}
`
	s := NewSemanticSplitter(DefaultRegistry(), DefaultSplitterConfig())
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "main.go", source, "go")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	runes := []rune(source)
	for i, c := range chunks {
		assert.Equal(t, c.RawStart, c.RawStart)
		if i > 0 {
			assert.Equal(t, chunks[i-1].RawEnd, c.RawStart, "raw spans must be contiguous, no gaps or overlaps")
		}
	}
	assert.Equal(t, 0, chunks[0].RawStart)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].RawEnd)
}

func TestSplitter_PlainTextFallbackForUnknownLanguage(t *testing.T) {
	source := strings.Repeat("some plain text content here\n", 5)
	s := NewSemanticSplitter(DefaultRegistry(), DefaultSplitterConfig())
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "notes.txt", source, "plaintext")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].VectorText, "// Context: notes.txt")
}

func TestSplitter_NWSBudgetSplitsLargeFile(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("func f" + string(rune('A'+i%26)) + "() {\n\tx := 1\n\t_ = x\n}\n\n")
	}
	source := "package main\n\n" + b.String()

	cfg := DefaultSplitterConfig()
	cfg.MaxChunkSize = 200
	s := NewSemanticSplitter(DefaultRegistry(), cfg)
	defer s.Close()

	chunks, err := s.ChunkSource(context.Background(), "big.go", source, "go")
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1, "a large file should split into multiple chunks")
}
