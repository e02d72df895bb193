package graph

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/internal/store"
)

// Decay and budget constants.
const (
	DecayNeighbor         = 0.8
	NeighborHops          = 1
	DecayBreadcrumb       = 0.7
	BreadcrumbExpandLimit = 1
	ImportFilesPerSeed    = 5
	DecayImport           = 0.6
	DecayDepth            = 0.7
	ChunksPerImportFile   = 2
)

// Expander implements search.GraphExpander across same-file neighbors,
// breadcrumb siblings, and a two-hop, barrel-aware import graph.
type Expander struct {
	Rows    store.RowStore
	Vectors store.VectorStore

	mu       sync.RWMutex
	pathSet  map[string]bool
	pathsSet bool
}

var _ search.GraphExpander = (*Expander)(nil)

// New builds an Expander over the given stores. The project's full path set
// is loaded lazily on first Expand call and cached for the process lifetime
// (invalidated only by calling InvalidatePathSet after a reindex).
func New(rows store.RowStore, vectors store.VectorStore) *Expander {
	return &Expander{Rows: rows, Vectors: vectors}
}

// InvalidatePathSet drops the cached project path set so the next Expand
// reloads it, used after a scan changes the file set.
func (e *Expander) InvalidatePathSet() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pathsSet = false
	e.pathSet = nil
}

func (e *Expander) loadPathSet(ctx context.Context) (map[string]bool, error) {
	e.mu.RLock()
	if e.pathsSet {
		ps := e.pathSet
		e.mu.RUnlock()
		return ps, nil
	}
	e.mu.RUnlock()

	files, err := e.Rows.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: list files: %w", err)
	}
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f.Path] = true
	}

	e.mu.Lock()
	e.pathSet = set
	e.pathsSet = true
	e.mu.Unlock()
	return set, nil
}

// Expand runs E1, E2, and E3 and returns the union, deduplicated against
// the seed set and against each other by (file_path, chunk_index).
func (e *Expander) Expand(ctx context.Context, seeds []search.Seed, queryTokens []string) ([]search.ExpandedChunk, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	seen := make(map[search.Key]bool, len(seeds))
	for _, s := range seeds {
		seen[s.Key] = true
	}

	var out []search.ExpandedChunk

	neighbors, err := e.expandNeighbors(ctx, seeds, seen)
	if err != nil {
		return nil, err
	}
	out = append(out, neighbors...)
	markSeen(seen, neighbors)

	siblings, err := e.expandBreadcrumbSiblings(ctx, seeds, seen)
	if err != nil {
		return nil, err
	}
	out = append(out, siblings...)
	markSeen(seen, siblings)

	imports, err := e.expandImports(ctx, seeds, seen, queryTokens)
	if err != nil {
		return nil, err
	}
	out = append(out, imports...)

	return out, nil
}

func markSeen(seen map[search.Key]bool, chunks []search.ExpandedChunk) {
	for _, c := range chunks {
		seen[c.Key] = true
	}
}

// expandNeighbors implements E1.
func (e *Expander) expandNeighbors(ctx context.Context, seeds []search.Seed, seen map[search.Key]bool) ([]search.ExpandedChunk, error) {
	byFile := make(map[string][]search.Seed)
	for _, s := range seeds {
		byFile[s.Key.FilePath] = append(byFile[s.Key.FilePath], s)
	}

	var paths []string
	for p := range byFile {
		paths = append(paths, p)
	}
	fileChunks, err := e.Vectors.GetFilesChunks(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("graph: get file chunks: %w", err)
	}

	var out []search.ExpandedChunk
	for path, fseeds := range byFile {
		chunks := fileChunks[path]
		if len(chunks) == 0 {
			continue
		}
		maxScore := 0.0
		for _, s := range fseeds {
			if s.RerankScore > maxScore {
				maxScore = s.RerankScore
			}
		}

		seedIdx := make(map[int]bool)
		for _, s := range fseeds {
			seedIdx[s.Key.ChunkIndex] = true
		}

		for _, s := range fseeds {
			for d := 1; d <= NeighborHops; d++ {
				for _, ni := range []int{s.Key.ChunkIndex - d, s.Key.ChunkIndex + d} {
					chunk := findChunkByIndex(chunks, ni)
					if chunk == nil {
						continue
					}
					key := search.Key{FilePath: path, ChunkIndex: ni}
					if seen[key] || seedIdx[ni] {
						continue
					}
					score := maxScore * pow(DecayNeighbor, float64(d))
					out = append(out, search.ExpandedChunk{Key: key, Chunk: chunk, Score: score, Reason: "neighbor"})
					seen[key] = true
				}
			}
		}
	}
	return out, nil
}

func findChunkByIndex(chunks []*store.ChunkRecord, idx int) *store.ChunkRecord {
	for _, c := range chunks {
		if c.ChunkIndex == idx {
			return c
		}
	}
	return nil
}

// expandBreadcrumbSiblings implements E2.
func (e *Expander) expandBreadcrumbSiblings(ctx context.Context, seeds []search.Seed, seen map[search.Key]bool) ([]search.ExpandedChunk, error) {
	type group struct {
		path     string
		prefix   string
		maxScore float64
	}
	groups := make(map[string]*group)
	for _, s := range seeds {
		if s.Chunk == nil {
			continue
		}
		prefix := parentPrefix(s.Chunk.Breadcrumb)
		if prefix == "" {
			continue
		}
		key := s.Key.FilePath + "\x00" + prefix
		g, ok := groups[key]
		if !ok {
			g = &group{path: s.Key.FilePath, prefix: prefix}
			groups[key] = g
		}
		if s.RerankScore > g.maxScore {
			g.maxScore = s.RerankScore
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}

	var paths []string
	seenPath := make(map[string]bool)
	for _, g := range groups {
		if !seenPath[g.path] {
			seenPath[g.path] = true
			paths = append(paths, g.path)
		}
	}
	fileChunks, err := e.Vectors.GetFilesChunks(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("graph: get file chunks: %w", err)
	}

	var out []search.ExpandedChunk
	for _, g := range groups {
		count := 0
		for _, c := range fileChunks[g.path] {
			if count >= BreadcrumbExpandLimit {
				break
			}
			if parentPrefix(c.Breadcrumb) != g.prefix {
				continue
			}
			key := search.Key{FilePath: g.path, ChunkIndex: c.ChunkIndex}
			if seen[key] {
				continue
			}
			out = append(out, search.ExpandedChunk{
				Key: key, Chunk: c, Score: g.maxScore * DecayBreadcrumb, Reason: "breadcrumb",
			})
			seen[key] = true
			count++
		}
	}
	return out, nil
}

func parentPrefix(breadcrumb string) string {
	parts := strings.Split(breadcrumb, " > ")
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], " > ")
}

// expandImports implements E3: a two-hop, barrel-aware BFS over the import
// graph seeded by one entry per seed file.
func (e *Expander) expandImports(ctx context.Context, seeds []search.Seed, seen map[search.Key]bool, queryTokens []string) ([]search.ExpandedChunk, error) {
	pathSet, err := e.loadPathSet(ctx)
	if err != nil {
		return nil, err
	}

	seedFiles := make(map[string]float64) // file -> max seed score
	for _, s := range seeds {
		if s.RerankScore > seedFiles[s.Key.FilePath] {
			seedFiles[s.Key.FilePath] = s.RerankScore
		}
	}

	// seedScore is carried through unchanged at every hop: a depth-1
	// frontier node (a barrel reached from a seed) still scores its own
	// resolved imports off the original seed score, not its own
	// already-decayed score, so decayImport is applied exactly once
	// regardless of hop count.
	type frontier struct {
		path      string
		seedScore float64
		depth     int
	}
	var queue []frontier
	for p, sc := range seedFiles {
		queue = append(queue, frontier{path: p, seedScore: sc, depth: 0})
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].path < queue[j].path })

	visited := make(map[string]bool)
	for _, f := range queue {
		visited[f.path] = true
	}

	type resolved struct {
		path  string
		score float64
	}
	var targets []resolved

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		content, err := e.Rows.GetFileContents(ctx, []string{cur.path})
		if err != nil {
			continue // resolver/content failure: skip, expansion continues
		}
		text, ok := content[cur.path]
		if !ok {
			continue
		}
		resolver := resolverFor(cur.path)
		if resolver == nil {
			continue
		}

		limit := ImportFilesPerSeed
		if cur.depth >= 1 {
			limit = minInt(ImportFilesPerSeed, 2)
		}

		imports := resolver.ExtractImports(text)
		found := 0
		for _, imp := range imports {
			if found >= limit {
				break
			}
			resolvedPath, ok := resolver.Resolve(imp, cur.path, pathSet)
			if !ok || visited[resolvedPath] {
				continue
			}
			visited[resolvedPath] = true
			found++

			depthFactor := 1.0
			if cur.depth >= 1 {
				depthFactor = pow(DecayDepth, float64(cur.depth))
			}
			score := cur.seedScore * DecayImport * depthFactor
			targets = append(targets, resolved{path: resolvedPath, score: score})

			if cur.depth == 0 && IsBarrel(resolvedPath) {
				queue = append(queue, frontier{path: resolvedPath, seedScore: cur.seedScore, depth: 1})
			}
		}
	}

	if len(targets) == 0 {
		return nil, nil
	}

	var paths []string
	for _, t := range targets {
		paths = append(paths, t.path)
	}
	fileChunks, err := e.Vectors.GetFilesChunks(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("graph: get file chunks: %w", err)
	}

	var out []search.ExpandedChunk
	for _, t := range targets {
		chunks := fileChunks[t.path]
		if len(chunks) == 0 {
			continue
		}
		picked := pickImportChunks(chunks, queryTokens, ChunksPerImportFile)
		for _, c := range picked {
			key := search.Key{FilePath: t.path, ChunkIndex: c.ChunkIndex}
			if seen[key] {
				continue
			}
			out = append(out, search.ExpandedChunk{Key: key, Chunk: c, Score: t.score, Reason: "import"})
			seen[key] = true
		}
	}
	return out, nil
}

func pickImportChunks(chunks []*store.ChunkRecord, queryTokens []string, n int) []*store.ChunkRecord {
	sorted := make([]*store.ChunkRecord, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	if len(queryTokens) == 0 {
		if len(sorted) > n {
			sorted = sorted[:n]
		}
		return sorted
	}

	type scored struct {
		chunk *store.ChunkRecord
		score float64
	}
	var withScore []scored
	for _, c := range sorted {
		s := tokenOverlap(c.Breadcrumb, c.DisplayCode, queryTokens)
		if s > 0 {
			withScore = append(withScore, scored{c, s})
		}
	}
	if len(withScore) == 0 {
		if len(sorted) > n {
			sorted = sorted[:n]
		}
		return sorted
	}
	// Stable by file order (already index-sorted); pick highest-overlap
	// chunks while preserving their relative order.
	sort.SliceStable(withScore, func(i, j int) bool { return withScore[i].score > withScore[j].score })
	if len(withScore) > n {
		withScore = withScore[:n]
	}
	out := make([]*store.ChunkRecord, len(withScore))
	for i, s := range withScore {
		out[i] = s.chunk
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func pow(base, exp float64) float64 {
	return math.Pow(base, exp)
}

var graphWordBoundaryCache sync.Map

// tokenOverlap mirrors the word-boundary/substring scoring used for lexical
// fallback recall, applied here to rank chunks within an imported file.
func tokenOverlap(breadcrumb, displayCode string, tokens []string) float64 {
	haystack := strings.ToLower(breadcrumb + " " + displayCode)
	var score float64
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		lt := strings.ToLower(tok)
		var re *regexp.Regexp
		if cached, ok := graphWordBoundaryCache.Load(lt); ok {
			re = cached.(*regexp.Regexp)
		} else {
			re = regexp.MustCompile(`\b` + regexp.QuoteMeta(lt) + `\b`)
			graphWordBoundaryCache.Store(lt, re)
		}
		if re.MatchString(haystack) {
			score += 1
		} else if strings.Contains(haystack, lt) {
			score += 0.5
		}
	}
	return score
}
