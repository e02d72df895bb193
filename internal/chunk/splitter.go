package chunk

import (
	"context"
	"strings"
	"unicode/utf16"

	"github.com/contextweaver/contextweaver/internal/sourceadapter"
)

// utf16RuneUnits reports how many UTF-16 code units r occupies, matching
// the char domain sourceadapter.Adapter operates in.
func utf16RuneUnits(r rune) int {
	units := utf16.RuneLen(r)
	if units < 1 {
		return 1
	}
	return units
}

// SemanticSplitter produces ProcessedChunks from a parsed AST and its
// source text using a split-then-merge strategy: the AST is recursively
// visited to produce budget-sized leaf windows, comments are forward-
// absorbed into the window that follows them, and adjacent windows are
// then greedily merged left-to-right while they fit the NWS/raw budgets.
type SemanticSplitter struct {
	parser   *Parser
	registry *LanguageRegistry
	config   SplitterConfig
}

// NewSemanticSplitter creates a splitter bound to registry's languages.
func NewSemanticSplitter(registry *LanguageRegistry, config SplitterConfig) *SemanticSplitter {
	return &SemanticSplitter{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		config:   config,
	}
}

// Close releases the underlying tree-sitter parser.
func (s *SemanticSplitter) Close() {
	s.parser.Close()
}

// leafWindow is one AST leaf produced by the recursive visit, before any
// sibling merging.
type leafWindow struct {
	start, end  int // native AST offset domain (bytes for tree-sitter)
	contextPath []string
	isComment   bool
}

// mergedWindow accumulates leafWindows merged together by the sibling
// merge pass; parts stay in source order so comment forward-absorption
// can inspect/move the trailing ones.
type mergedWindow struct {
	parts       []leafWindow
	contextPath []string
}

func (m *mergedWindow) start() int { return m.parts[0].start }
func (m *mergedWindow) end() int   { return m.parts[len(m.parts)-1].end }

// ChunkSource splits already-loaded source text for a given language into
// ProcessedChunks. filePath is used only as the root contextPath entry and
// in the plain-text fallback's breadcrumb header.
func (s *SemanticSplitter) ChunkSource(ctx context.Context, filePath, source, language string) ([]*ProcessedChunk, error) {
	langConfig, ok := s.registry.GetByName(language)
	if !ok {
		return s.chunkPlainText(filePath, source), nil
	}

	tree, err := s.parser.Parse(ctx, []byte(source), language)
	if err != nil || tree == nil || tree.Root == nil {
		return s.chunkPlainText(filePath, source), nil
	}

	adapter := sourceadapter.New(source, int(tree.Root.EndByte))
	if adapter.Domain() == sourceadapter.DomainUnknown {
		return s.chunkPlainText(filePath, source), nil
	}

	leaves := s.visit(tree.Root, []string{filePath}, langConfig, adapter, source)
	if len(leaves) == 0 {
		return s.chunkPlainText(filePath, source), nil
	}

	merged := s.mergeSiblings(leaves, adapter)
	return s.emit(merged, adapter, source), nil
}

// visit recursively walks node, producing one leafWindow per sub-tree
// whose NWS size fits the budget (or, failing that, per atomic leaf).
func (s *SemanticSplitter) visit(node *Node, contextPath []string, lang *LanguageConfig, adapter *sourceadapter.Adapter, source string) []leafWindow {
	nws := adapter.NWS(int(node.StartByte), int(node.EndByte))

	if nws <= s.config.MaxChunkSize {
		return []leafWindow{{
			start:       int(node.StartByte),
			end:         int(node.EndByte),
			contextPath: contextPath,
			isComment:   lang.IsCommentNode(node.Type),
		}}
	}

	if len(node.Children) == 0 {
		// Atomic oversized node (e.g. a huge string literal): emit as a
		// single over-budget window, nothing more we can do.
		return []leafWindow{{
			start:       int(node.StartByte),
			end:         int(node.EndByte),
			contextPath: contextPath,
		}}
	}

	childContext := contextPath
	if prefix, ok := lang.IsHierarchyNode(node.Type); ok {
		if name := findName(node, lang, source); name != "" {
			next := make([]string, len(contextPath)+1)
			copy(next, contextPath)
			next[len(contextPath)] = prefix + name
			childContext = next
		}
	}

	var windows []leafWindow
	for _, child := range node.Children {
		windows = append(windows, s.visit(child, childContext, lang, adapter, source)...)
	}

	if len(windows) == 0 {
		return []leafWindow{{
			start:       int(node.StartByte),
			end:         int(node.EndByte),
			contextPath: contextPath,
		}}
	}

	return windows
}

// findName looks for the first direct child whose type is one of the
// language's name-bearing node types and returns its source text, sliced
// directly from the raw byte source using the node's native byte offsets.
func findName(node *Node, lang *LanguageConfig, source string) string {
	for _, child := range node.Children {
		if lang.IsNameNode(child.Type) {
			if int(child.EndByte) <= len(source) && child.StartByte <= child.EndByte {
				return source[child.StartByte:child.EndByte]
			}
		}
	}
	return ""
}

// commonPrefixLen returns the length of the shared prefix of two
// contextPath slices.
func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// mergeSiblings runs the left-to-right greedy merge with forward comment
// absorption described in the splitter algorithm.
func (s *SemanticSplitter) mergeSiblings(leaves []leafWindow, adapter *sourceadapter.Adapter) []*mergedWindow {
	windows := make([]*mergedWindow, len(leaves))
	for i, l := range leaves {
		windows[i] = &mergedWindow{parts: []leafWindow{l}, contextPath: l.contextPath}
	}

	var result []*mergedWindow
	current := windows[0]

	for i := 1; i < len(windows); i++ {
		next := windows[i]

		// Forward comment absorption: move current's trailing comment
		// leaves onto the front of next, keeping at least one leaf in
		// current so it never becomes empty.
		for len(current.parts) > 1 && current.parts[len(current.parts)-1].isComment {
			moved := current.parts[len(current.parts)-1]
			current.parts = current.parts[:len(current.parts)-1]
			next.parts = append([]leafWindow{moved}, next.parts...)
		}

		curSize := adapter.NWS(current.start(), current.end())
		nextSize := adapter.NWS(next.start(), next.end())
		gapNws := adapter.NWS(current.end(), next.start())
		combinedNws := curSize + gapNws + nextSize
		combinedRaw := next.end() - current.start()

		sameContext := commonPrefixLen(current.contextPath, next.contextPath) >= minLen(len(current.contextPath), len(next.contextPath))
		penalty := 0.7
		if sameContext {
			penalty = 1.0
		}

		fitsNws := float64(combinedNws) <= float64(s.config.MaxChunkSize)*penalty ||
			(curSize < s.config.MinChunkSize && float64(combinedNws) < 1.5*float64(s.config.MaxChunkSize)*penalty)
		fitsRaw := float64(combinedRaw) <= float64(s.config.MaxRawChars)*penalty

		if fitsNws && fitsRaw {
			current.parts = append(current.parts, next.parts...)
			if len(next.contextPath) > len(current.contextPath) {
				current.contextPath = next.contextPath
			}
			continue
		}

		result = append(result, current)
		current = next
	}
	result = append(result, current)
	return result
}

func minLen(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// emit converts merged windows into ProcessedChunks: computing raw spans
// (gap ownership), vector spans (backward overlap search), and slicing
// display/vector text, then converting all offsets to the character
// domain for storage.
func (s *SemanticSplitter) emit(merged []*mergedWindow, adapter *sourceadapter.Adapter, source string) []*ProcessedChunk {
	chunks := make([]*ProcessedChunk, 0, len(merged))

	nativeFileEnd := adapter.ByteLen()
	if adapter.Domain() != sourceadapter.DomainUTF8 {
		nativeFileEnd = adapter.CharLen()
	}
	charFileEnd := adapter.CharLen()

	prevSemEnd := 0
	for i, m := range merged {
		semStart := m.start()
		semEnd := m.end()

		rawStartNative := prevSemEnd
		rawEndNative := semEnd
		if i == len(merged)-1 {
			rawEndNative = nativeFileEnd
		}
		prevSemEnd = semEnd

		vecStartNative := semStart
		if i > 0 {
			vecStartNative = s.searchBackwardOverlap(adapter, semStart)
		}
		vecEndNative := semEnd

		displayCode := adapter.Slice(semStart, semEnd)
		contextHeader := strings.Join(m.contextPath, " > ")
		vectorText := "// Context: " + contextHeader + "\n" + adapter.Slice(vecStartNative, vecEndNative)

		pc := &ProcessedChunk{
			ChunkIndex:  i,
			ContextPath: m.contextPath,
			Breadcrumb:  contextHeader,
			StartIndex:  adapter.ToChar(semStart),
			EndIndex:    adapter.ToChar(semEnd),
			RawStart:    adapter.ToChar(rawStartNative),
			RawEnd: func() int {
				if i == len(merged)-1 {
					return charFileEnd
				}
				return adapter.ToChar(rawEndNative)
			}(),
			VecStart:    adapter.ToChar(vecStartNative),
			VecEnd:      adapter.ToChar(vecEndNative),
			DisplayCode: displayCode,
			VectorText:  vectorText,
		}
		chunks = append(chunks, pc)
	}
	return chunks
}

// searchBackwardOverlap finds the largest native start offset s <= target
// such that NWS(s, target) >= ChunkOverlap, bounded so the raw extension
// (target-s) never exceeds 25% of MaxRawChars. Returns target unchanged
// (no overlap) if no such s exists within that bound.
func (s *SemanticSplitter) searchBackwardOverlap(adapter *sourceadapter.Adapter, target int) int {
	maxExtension := s.config.MaxRawChars / 4
	lowBound := target - maxExtension
	if lowBound < 0 {
		lowBound = 0
	}

	best := target
	lo, hi := lowBound, target
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if adapter.NWS(mid, target) >= s.config.ChunkOverlap {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// chunkPlainText is the universal fallback: split by lines using only the
// NWS budget, no overlap, single-context breadcrumb.
func (s *SemanticSplitter) chunkPlainText(filePath, source string) []*ProcessedChunk {
	adapter := sourceadapter.NewPlainText(source)
	lines := strings.Split(source, "\n")

	var chunks []*ProcessedChunk
	curNWS := 0
	chunkStartOffset := 0
	offset := 0

	flush := func(endOffset int, isLast bool) {
		rawEnd := endOffset
		if isLast {
			rawEnd = adapter.CharLen()
		}
		display := adapter.Slice(chunkStartOffset, endOffset)
		pc := &ProcessedChunk{
			ChunkIndex:  len(chunks),
			ContextPath: []string{filePath},
			Breadcrumb:  filePath,
			StartIndex:  chunkStartOffset,
			EndIndex:    endOffset,
			RawStart:    chunkStartOffset,
			RawEnd:      rawEnd,
			VecStart:    chunkStartOffset,
			VecEnd:      endOffset,
			DisplayCode: display,
			VectorText:  "// Context: " + filePath + "\n" + display,
		}
		chunks = append(chunks, pc)
	}

	for i, line := range lines {
		lineNWS := 0
		lineCharLen := 0
		for _, r := range line {
			lineCharLen += utf16RuneUnits(r)
			switch r {
			case ' ', '\t', '\n', '\r':
			default:
				lineNWS += utf16RuneUnits(r)
			}
		}
		if i < len(lines)-1 {
			lineCharLen++ // account for the '\n' separator
		}

		if curNWS > 0 && curNWS+lineNWS > s.config.MaxChunkSize {
			flush(offset, false)
			chunkStartOffset = offset
			curNWS = 0
		}

		curNWS += lineNWS
		offset += lineCharLen
	}
	flush(offset, true)

	return chunks
}

// SupportedExtensions returns the union of AST-chunkable extensions known
// to the splitter's registry.
func (s *SemanticSplitter) SupportedExtensions() []string {
	return s.registry.SupportedExtensions()
}
