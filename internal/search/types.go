// Package search implements hybrid recall, Reciprocal Rank Fusion, a
// reranker-driven smart cutoff, and orchestrates graph expansion and
// context packing into a final ContextPack for a query.
package search

import (
	"context"

	"github.com/contextweaver/contextweaver/internal/store"
)

// RRF fusion constants.
const (
	RRFK0   = 20
	RRFWVec = 0.6
	RRFWLex = 0.4
)

// Hybrid recall breadths.
const (
	VectorTopK       = 80
	VectorTopM       = 60
	LexTotalChunks   = 40
	FTSTopKFiles     = 20
	LexChunksPerFile = 2
	FusedTopM        = 60
	RerankTopN       = 10
)

// Smart cutoff constants.
const (
	SmartMinScore        = 0.25
	SmartTopScoreRatio   = 0.5
	SmartTopScoreDeltaAbs = 0.25
	SmartMinK            = 2
	SmartMaxK            = 8
)

// RecallSource identifies which recall branch produced a candidate.
type RecallSource string

const (
	SourceVector RecallSource = "vector"
	SourceLexical RecallSource = "lexical"
)

// Key identifies a chunk across recall branches for fusion/dedup purposes.
type Key struct {
	FilePath   string
	ChunkIndex int
}

// Candidate is a chunk surfaced by one or both recall branches, prior to
// fusion.
type Candidate struct {
	Key    Key
	Chunk  *store.ChunkRecord
	Source RecallSource

	VecRank  int // 0-indexed rank in the vector branch; zero when absent
	VecScore float64

	LexRank  int // 0-indexed rank in the lexical branch; zero when absent
	LexScore float64
}

// FusedResult is a Candidate after RRF fusion.
type FusedResult struct {
	Key        Key
	Chunk      *store.ChunkRecord
	FusedScore float64
	Source     RecallSource // the branch that contributed the candidate's max score
}

// Seed is a FusedResult after reranking and smart top-K cutoff.
type Seed struct {
	Key         Key
	Chunk       *store.ChunkRecord
	RerankScore float64
}

// Segment is a merged, budget-sliced span of text within a file, ready for
// presentation.
type Segment struct {
	StartLine int
	EndLine   int
	Text      string
	Score     float64
	Breadcrumb string
}

// PackedFile groups the segments selected for one file.
type PackedFile struct {
	FilePath string
	Segments []Segment
}

// ExpandedChunk is a chunk pulled in by GraphExpander, carrying a decayed
// score derived from the seed(s) that justified its inclusion.
type ExpandedChunk struct {
	Key    Key
	Chunk  *store.ChunkRecord
	Score  float64
	Reason string // "neighbor", "breadcrumb", "import"
}

// ContextPack is the final answer to a query: the seeds chosen, the chunks
// pulled in by expansion, and the packed file segments ready to hand to a
// downstream model.
type ContextPack struct {
	Query    string
	Seeds    []Seed
	Expanded []ExpandedChunk
	Files    []PackedFile
	Debug    map[string]any
}

// Embedder embeds a query string into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphExpander pulls in chunks related to a seed set via same-file,
// breadcrumb-sibling, or cross-file import edges.
type GraphExpander interface {
	Expand(ctx context.Context, seeds []Seed, queryTokens []string) ([]ExpandedChunk, error)
}

// ContextPacker merges and budgets chunks into per-file text segments.
type ContextPacker interface {
	Pack(ctx context.Context, chunks []ScoredChunk) ([]PackedFile, error)
}

// ScoredChunk is the common shape ContextPacker accepts: a chunk plus
// whatever score (seed rerank score, or expansion decay score) justified
// its inclusion.
type ScoredChunk struct {
	Chunk *store.ChunkRecord
	Score float64
}
