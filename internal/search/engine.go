package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/contextweaver/contextweaver/internal/store"
)

// Engine orchestrates buildContextPack: hybrid recall, RRF fusion, rerank,
// smart cutoff, graph expansion, and context packing.
type Engine struct {
	Rows     store.RowStore
	Vectors  store.VectorStore
	Embedder Embedder
	Reranker Reranker
	Expander GraphExpander
	Packer   ContextPacker
}

// BuildContextPack runs the full query pipeline: search, expand, and pack.
func (e *Engine) BuildContextPack(ctx context.Context, query string) (*ContextPack, error) {
	tokens := store.SegmentQuery(query)
	debug := map[string]any{
		"wVec": RRFWVec,
		"wLex": RRFWLex,
	}

	vecCandidates, lexCandidates, err := e.recall(ctx, query, tokens, debug)
	if err != nil {
		return nil, err
	}

	fused := Fuse(vecCandidates, lexCandidates)
	sort.Slice(fused, func(i, j int) bool { return fused[i].FusedScore > fused[j].FusedScore })
	fused = TopM(fused, FusedTopM)
	debug["fused_count"] = len(fused)

	seeds, err := e.rerankAndCutoff(ctx, query, tokens, fused)
	if err != nil {
		return nil, err
	}
	debug["seed_count"] = len(seeds)

	var expanded []ExpandedChunk
	if e.Expander != nil && len(seeds) > 0 {
		expanded, err = e.Expander.Expand(ctx, seeds, tokens)
		if err != nil {
			return nil, fmt.Errorf("search: expand: %w", err)
		}
	}
	debug["expanded_count"] = len(expanded)

	scored := make([]ScoredChunk, 0, len(seeds)+len(expanded))
	for _, s := range seeds {
		scored = append(scored, ScoredChunk{Chunk: s.Chunk, Score: s.RerankScore})
	}
	for _, x := range expanded {
		scored = append(scored, ScoredChunk{Chunk: x.Chunk, Score: x.Score})
	}

	var files []PackedFile
	if e.Packer != nil && len(scored) > 0 {
		files, err = e.Packer.Pack(ctx, scored)
		if err != nil {
			return nil, fmt.Errorf("search: pack: %w", err)
		}
	}

	return &ContextPack{
		Query:    query,
		Seeds:    seeds,
		Expanded: expanded,
		Files:    files,
		Debug:    debug,
	}, nil
}

// recall runs the vector and lexical branches concurrently and returns
// their candidates, each sorted by the branch's own ranking.
func (e *Engine) recall(ctx context.Context, query string, tokens []string, debug map[string]any) ([]Candidate, []Candidate, error) {
	var (
		vecCandidates []Candidate
		lexCandidates []Candidate
		vecErr, lexErr error
		wg sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vecCandidates, vecErr = e.recallVector(ctx, query)
	}()
	go func() {
		defer wg.Done()
		lexCandidates, lexErr = e.recallLexical(ctx, tokens)
	}()
	wg.Wait()

	if vecErr != nil {
		return nil, nil, fmt.Errorf("search: vector recall: %w", vecErr)
	}
	if lexErr != nil {
		return nil, nil, fmt.Errorf("search: lexical recall: %w", lexErr)
	}
	debug["vector_count"] = len(vecCandidates)
	debug["lexical_count"] = len(lexCandidates)
	return vecCandidates, lexCandidates, nil
}

func (e *Engine) recallVector(ctx context.Context, query string) ([]Candidate, error) {
	if e.Embedder == nil || e.Vectors == nil {
		return nil, nil
	}
	vec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := e.Vectors.Search(ctx, vec, VectorTopK, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > VectorTopM {
		results = results[:VectorTopM]
	}

	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = Candidate{
			Key:      Key{FilePath: r.Chunk.FilePath, ChunkIndex: r.Chunk.ChunkIndex},
			Chunk:    r.Chunk,
			Source:   SourceVector,
			VecRank:  i,
			VecScore: 1.0 / (1.0 + float64(r.Distance)),
		}
	}
	return out, nil
}

func (e *Engine) recallLexical(ctx context.Context, tokens []string) ([]Candidate, error) {
	if e.Rows == nil || len(tokens) == 0 {
		return nil, nil
	}

	chunkHits, err := e.Rows.SearchChunksFTS(ctx, tokens, LexTotalChunks)
	if err != nil {
		return nil, err
	}
	if len(chunkHits) > 0 {
		return e.candidatesFromFTS(chunkHits), nil
	}

	return e.recallLexicalFromFiles(ctx, tokens)
}

func (e *Engine) candidatesFromFTS(hits []*store.FTSResult) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for i, h := range hits {
		out = append(out, Candidate{
			Key: Key{FilePath: h.FilePath, ChunkIndex: h.ChunkIndex},
			Chunk: &store.ChunkRecord{
				FilePath: h.FilePath, ChunkIndex: h.ChunkIndex,
				Breadcrumb: h.Breadcrumb, DisplayCode: h.Content,
			},
			Source:   SourceLexical,
			LexRank:  i,
			LexScore: h.Score,
		})
	}
	return out
}

// recallLexicalFromFiles is the fallback path: search files_fts for
// candidate files, then pick each file's best-overlapping chunks from the
// vector store (which is the only place full ChunkRecords live).
func (e *Engine) recallLexicalFromFiles(ctx context.Context, tokens []string) ([]Candidate, error) {
	fileHits, err := e.Rows.SearchFilesFTS(ctx, tokens, FTSTopKFiles)
	if err != nil {
		return nil, err
	}
	if len(fileHits) == 0 || e.Vectors == nil {
		return nil, nil
	}

	paths := make([]string, len(fileHits))
	for i, h := range fileHits {
		paths[i] = h.FilePath
	}
	fileChunks, err := e.Vectors.GetFilesChunks(ctx, paths)
	if err != nil {
		return nil, err
	}

	type scoredChunk struct {
		chunk *store.ChunkRecord
		score float64
	}

	var all []scoredChunk
	for _, path := range paths {
		chunks := fileChunks[path]
		var picked []scoredChunk
		for _, c := range chunks {
			s := tokenOverlapScore(c.Breadcrumb, c.DisplayCode, tokens)
			if s > 0 {
				picked = append(picked, scoredChunk{c, s})
			}
		}
		if len(picked) == 0 {
			continue // file's max overlap is 0: skip it entirely
		}
		sort.Slice(picked, func(i, j int) bool { return picked[i].score > picked[j].score })
		if len(picked) > LexChunksPerFile {
			picked = picked[:LexChunksPerFile]
		}
		all = append(all, picked...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > LexTotalChunks {
		all = all[:LexTotalChunks]
	}

	out := make([]Candidate, len(all))
	for i, sc := range all {
		out[i] = Candidate{
			Key:      Key{FilePath: sc.chunk.FilePath, ChunkIndex: sc.chunk.ChunkIndex},
			Chunk:    sc.chunk,
			Source:   SourceLexical,
			LexRank:  i,
			LexScore: sc.score,
		}
	}
	return out, nil
}

// rerankAndCutoff sends the fused candidates to the reranker and applies
// the smart top-K cutoff. If no reranker is configured, fused order stands
// in for rerank order (score carried over unchanged).
func (e *Engine) rerankAndCutoff(ctx context.Context, query string, tokens []string, fused []FusedResult) ([]Seed, error) {
	if len(fused) == 0 {
		return nil, nil
	}
	if e.Reranker == nil {
		seeds := make([]Seed, 0, len(fused))
		for _, f := range fused {
			seeds = append(seeds, Seed{Key: f.Key, Chunk: f.Chunk, RerankScore: f.FusedScore})
		}
		return SmartCutoff(seeds), nil
	}

	docs := make([]string, len(fused))
	for i, f := range fused {
		breadcrumb := truncateMiddle(f.Chunk.Breadcrumb, 250)
		remaining := 1000 - len(breadcrumb) - 1
		docs[i] = breadcrumb + "\n" + extractAroundHit(f.Chunk.DisplayCode, tokens, remaining)
	}

	results, err := e.Reranker.Rerank(ctx, query, docs, RerankTopN)
	if err != nil {
		return nil, fmt.Errorf("search: rerank: %w", err)
	}

	seeds := make([]Seed, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(fused) {
			continue
		}
		f := fused[r.Index]
		seeds = append(seeds, Seed{Key: f.Key, Chunk: f.Chunk, RerankScore: r.Score})
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].RerankScore > seeds[j].RerankScore })

	return SmartCutoff(seeds), nil
}
