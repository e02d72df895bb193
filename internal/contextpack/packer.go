// Package contextpack merges scored chunks into per-file text segments
// under a total character budget, ready to hand to a downstream model.
package contextpack

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/contextweaver/contextweaver/internal/search"
	"github.com/contextweaver/contextweaver/internal/store"
)

// Budget constants.
const (
	MaxSegmentsPerFile = 3
	MaxTotalChars      = 48000
)

// Packer implements search.ContextPacker: group by file, merge overlapping
// intervals, slice text, cap segments per file, and enforce a global
// character budget.
type Packer struct {
	Rows store.RowStore
}

var _ search.ContextPacker = (*Packer)(nil)

// New builds a Packer backed by the given row store for content lookups.
func New(rows store.RowStore) *Packer {
	return &Packer{Rows: rows}
}

type fileGroup struct {
	path     string
	chunks   []search.ScoredChunk
	maxScore float64
}

// Pack groups chunks by file (sorted by each file's max chunk score
// descending), merges overlapping raw spans within a file, slices the
// resulting intervals from batch-loaded file content, keeps the top
// MaxSegmentsPerFile segments per file by score, and stops adding
// segments/files once the accumulated character budget is exceeded.
func (p *Packer) Pack(ctx context.Context, chunks []search.ScoredChunk) ([]search.PackedFile, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	groups := groupByFile(chunks)

	var paths []string
	for _, g := range groups {
		paths = append(paths, g.path)
	}
	contents, err := p.Rows.GetFileContents(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("contextpack: load file contents: %w", err)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].maxScore > groups[j].maxScore })

	var result []search.PackedFile
	totalChars := 0

	for _, g := range groups {
		content, ok := contents[g.path]
		if !ok {
			continue
		}

		merged := mergeIntervals(g.chunks)

		sort.Slice(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
		if len(merged) > MaxSegmentsPerFile {
			merged = merged[:MaxSegmentsPerFile]
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].start < merged[j].start })

		segments := sliceSegments(content, merged)

		var kept []search.Segment
		for _, seg := range segments {
			if totalChars > MaxTotalChars {
				break
			}
			kept = append(kept, seg)
			totalChars += len(seg.Text)
		}
		if len(kept) > 0 {
			result = append(result, search.PackedFile{FilePath: g.path, Segments: kept})
		}
		if totalChars > MaxTotalChars {
			break
		}
	}

	return result, nil
}

func groupByFile(chunks []search.ScoredChunk) []*fileGroup {
	byPath := make(map[string]*fileGroup)
	var order []string
	for _, c := range chunks {
		if c.Chunk == nil {
			continue
		}
		g, ok := byPath[c.Chunk.FilePath]
		if !ok {
			g = &fileGroup{path: c.Chunk.FilePath}
			byPath[c.Chunk.FilePath] = g
			order = append(order, c.Chunk.FilePath)
		}
		g.chunks = append(g.chunks, c)
		if c.Score > g.maxScore {
			g.maxScore = c.Score
		}
	}
	groups := make([]*fileGroup, 0, len(order))
	for _, p := range order {
		groups = append(groups, byPath[p])
	}
	return groups
}

type interval struct {
	start, end int
	score      float64
	breadcrumb string
}

// mergeIntervals sorts a file's chunks by raw_start and linearly merges
// spans whose intervals overlap (newStart <= lastEnd), taking the max score
// and the first-seen breadcrumb.
func mergeIntervals(chunks []search.ScoredChunk) []interval {
	sorted := make([]search.ScoredChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Chunk.RawStart < sorted[j].Chunk.RawStart })

	var merged []interval
	for _, c := range sorted {
		start, end := c.Chunk.RawStart, c.Chunk.RawEnd
		if len(merged) > 0 && start <= merged[len(merged)-1].end {
			last := &merged[len(merged)-1]
			if end > last.end {
				last.end = end
			}
			if c.Score > last.score {
				last.score = c.Score
			}
			continue
		}
		merged = append(merged, interval{start: start, end: end, score: c.Score, breadcrumb: c.Chunk.Breadcrumb})
	}
	return merged
}

// sliceSegments converts byte/char intervals into 1-based line-numbered
// text segments.
func sliceSegments(content string, intervals []interval) []search.Segment {
	segments := make([]search.Segment, 0, len(intervals))
	for _, iv := range intervals {
		start := clamp(iv.start, 0, len(content))
		end := clamp(iv.end, start, len(content))
		text := content[start:end]
		segments = append(segments, search.Segment{
			StartLine:  lineAt(content, start),
			EndLine:    lineAt(content, end),
			Text:       text,
			Score:      iv.score,
			Breadcrumb: iv.breadcrumb,
		})
	}
	return segments
}

// lineAt returns the 1-based line number containing byte offset off, by
// counting newlines up to it.
func lineAt(content string, off int) int {
	if off > len(content) {
		off = len(content)
	}
	return 1 + strings.Count(content[:off], "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
