package chunk

import "context"

// Point is a row/column source location, 0-indexed.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-agnostic AST node produced by converting a tree-sitter
// parse tree. Offsets are in whatever domain the underlying grammar reports
// them (tree-sitter: UTF-8 bytes).
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

// Tree is a parsed file: its root node, original source, and language tag.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// SplitterConfig tunes the SemanticSplitter's budgets. Units are NWS
// (non-whitespace) characters, except MaxRawChars which is a raw character
// budget used only to bound overlap growth and raw-span merging.
type SplitterConfig struct {
	MaxChunkSize  int // NWS budget per chunk; default ~1000
	MinChunkSize  int // NWS floor before a window is considered "small"; default ~50
	ChunkOverlap  int // NWS overlap target; default ~40-200
	MaxRawChars   int // raw char budget; default 4*MaxChunkSize
}

// DefaultSplitterConfig returns the default chunk size budgets.
func DefaultSplitterConfig() SplitterConfig {
	maxChunk := 1000
	return SplitterConfig{
		MaxChunkSize: maxChunk,
		MinChunkSize: 50,
		ChunkOverlap: 100,
		MaxRawChars:  4 * maxChunk,
	}
}

// ProcessedChunk is the SemanticSplitter's output unit: it carries both
// the non-overlapping raw span (for exact file reconstruction) and the
// possibly-overlapping vector span (for embedding).
type ProcessedChunk struct {
	ChunkIndex int
	Language   string

	ContextPath []string // e.g. ["a.ts", "class Foo", "method bar"]
	Breadcrumb  string   // "<path> > <type-prefix><name> > ..."

	StartIndex int // semantic node start, char offset
	EndIndex   int // semantic node end, char offset

	RawStart int // non-overlapping coverage start, char offset
	RawEnd   int // non-overlapping coverage end, char offset

	VecStart int // possibly-overlapping embed window start, char offset
	VecEnd   int // possibly-overlapping embed window end, char offset

	DisplayCode string
	VectorText  string
}

// FileInput is the Chunker's input: a single file's content plus its
// resolved language tag.
type FileInput struct {
	Path     string
	Content  string
	Language string
}

// Chunker produces ProcessedChunks from a file. AST-based chunkers attempt
// semantic windowing first; the plain-text chunker is the universal
// fallback when AST parsing is unavailable or the index domain is unknown.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*ProcessedChunk, error)
	SupportedExtensions() []string
}

// LanguageConfig describes how the splitter should interpret an AST for a
// given language: which node types introduce a new context-path entry
// (and their display prefix), which child node types carry the name for
// those nodes, and which node types are comments subject to forward
// absorption.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// HierarchyTypes maps an AST node type that should push a new
	// contextPath entry to the display prefix used when composing
	// "<type-prefix><name>" (e.g. "function_declaration" -> "function ").
	HierarchyTypes map[string]string

	// NameTypes lists the child node types that may carry a hierarchy
	// node's name (identifier, type_identifier, field_identifier, ...).
	NameTypes []string

	// CommentTypes lists node types treated as comments for forward
	// absorption purposes.
	CommentTypes []string
}

// IsHierarchyNode reports whether nodeType introduces a new context-path
// entry, returning the display prefix to use if so.
func (c *LanguageConfig) IsHierarchyNode(nodeType string) (string, bool) {
	prefix, ok := c.HierarchyTypes[nodeType]
	return prefix, ok
}

// IsNameNode reports whether nodeType is a name-bearing child node type.
func (c *LanguageConfig) IsNameNode(nodeType string) bool {
	for _, t := range c.NameTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

// IsCommentNode reports whether nodeType is a comment node type.
func (c *LanguageConfig) IsCommentNode(nodeType string) bool {
	for _, t := range c.CommentTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
