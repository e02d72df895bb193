package search

import (
	"sort"

	"github.com/contextweaver/contextweaver/internal/store"
)

// Fuse combines vector and lexical candidates using Reciprocal Rank Fusion
// with fixed weights: score = weight / (RRFK0 + rank), rank 0-indexed. A
// chunk present in both branches sums both contributions; its Source
// reflects whichever branch contributed the larger individual score (vector
// wins ties, since the vector branch is processed first).
func Fuse(vec, lex []Candidate) []FusedResult {
	byKey := make(map[Key]*FusedResult)
	vecContribution := make(map[Key]float64)
	lexContribution := make(map[Key]float64)

	for rank, c := range vec {
		r := getOrCreate(byKey, c.Key, c.Chunk)
		contribution := RRFWVec / float64(RRFK0+rank)
		r.FusedScore += contribution
		vecContribution[c.Key] += contribution
	}
	for rank, c := range lex {
		r := getOrCreate(byKey, c.Key, c.Chunk)
		contribution := RRFWLex / float64(RRFK0+rank)
		r.FusedScore += contribution
		lexContribution[c.Key] += contribution
	}

	for key, r := range byKey {
		if lexContribution[key] > vecContribution[key] {
			r.Source = SourceLexical
		} else {
			r.Source = SourceVector
		}
	}

	results := make([]FusedResult, 0, len(byKey))
	for _, r := range byKey {
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Key.FilePath != results[j].Key.FilePath {
			return results[i].Key.FilePath < results[j].Key.FilePath
		}
		return results[i].Key.ChunkIndex < results[j].Key.ChunkIndex
	})

	return results
}

func getOrCreate(m map[Key]*FusedResult, key Key, chunk *store.ChunkRecord) *FusedResult {
	if r, ok := m[key]; ok {
		if r.Chunk == nil {
			r.Chunk = chunk
		}
		return r
	}
	r := &FusedResult{Key: key, Chunk: chunk}
	m[key] = r
	return r
}

// TopM truncates a sorted FusedResult slice to its first m entries.
func TopM(results []FusedResult, m int) []FusedResult {
	if m < 0 || m > len(results) {
		return results
	}
	return results[:m]
}
