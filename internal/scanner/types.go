// Package scanner crawls a project directory, classifies each file against
// the last known scan state, and reconciles the row store so the Indexer
// can pick up exactly the files whose vectors need (re)writing.
package scanner

import (
	"github.com/contextweaver/contextweaver/internal/chunk"
)

// extensionLanguage is the complete extension -> language whitelist. Any
// extension not listed here is "unknown" and filtered out of the crawl.
var extensionLanguage = map[string]string{
	".ts":  "typescript",
	".tsx": "typescript",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".md":  "markdown",
	".py":  "python",
	".go":  "go",
	".rs":  "rust",
	".java": "java",
	".kt":  "kotlin",
	".swift": "swift",
	".cpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",
	".hpp": "cpp",
	".h":   "cpp",
	".c":   "c",
	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",
	".fish": "shell",
	".ps1": "powershell",
	".sql": "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
	".xml":  "xml",
	".html": "html",
	".css":  "css",
	".scss": "scss",
	".sass": "sass",
	".less": "less",
	".vue":    "vue",
	".svelte": "svelte",
	".rb":   "ruby",
	".php":  "php",
	".dart": "dart",
	".lua":  "lua",
	".r":    "r",
}

// fallbackPlainTextLanguages are the languages for which ChunkSource's AST
// attempt may legitimately come back empty and a line-based fallback is
// expected, not an error worth logging at warn level.
var fallbackPlainTextLanguages = map[string]bool{
	"python":   true,
	"go":       true,
	"rust":     true,
	"java":     true,
	"markdown": true,
	"json":     true,
}

// LanguageForPath returns the whitelisted language for path's extension, or
// "" if the extension is not in the whitelist (caller must filter the file
// out of the crawl).
func LanguageForPath(path string) string {
	ext := extOf(path)
	lang, ok := extensionLanguage[ext]
	if !ok {
		return ""
	}
	return lang
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		c := path[i]
		if c == '.' {
			return path[i:]
		}
		if c == '/' {
			break
		}
	}
	return ""
}

// Status classifies a crawled file relative to the last known scan state.
type Status string

const (
	StatusAdded     Status = "added"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
	StatusDeleted   Status = "deleted"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// MaxFileSize is the size above which a file is skipped without being read.
const MaxFileSize = 100 * 1024

// BatchSize is the crawl-processing batch size.
const BatchSize = 100

// FileWork is one file's outcome handed from the Scanner to the Indexer's
// vector-indexing phase: the union of added/modified files, self-healing
// unchanged files whose vectors lag their content hash, and deletion
// tombstones.
type FileWork struct {
	Path     string
	Status   Status // Added, Modified, Unchanged (self-heal), or Deleted
	Content  string
	Hash     string
	Language string
	Chunks   []*chunk.ProcessedChunk
}

// Stats summarizes one scan's crawl-and-reconcile outcome.
type Stats struct {
	// RunID identifies this scan uniquely, for correlating its log lines
	// and any downstream indexing work with the scan that produced it.
	RunID     string
	Added     int
	Modified  int
	Unchanged int
	Deleted   int
	Skipped   int
	Errors    int
}

// Options configures a single Scan call.
type Options struct {
	// DisableVectorIndex skips the embedding-dimension check and the
	// forceReindex machinery. Vector indexing is enabled by default; set
	// this to opt out (e.g. a metadata-only scan).
	DisableVectorIndex bool

	// EmbeddingDimensions is the currently configured embedding model's
	// output dimension, compared against the persisted
	// metadata.embedding_dimensions on every scan.
	EmbeddingDimensions int

	// MaxConcurrency overrides the clamp(cpu-1, 4, 32) default when > 0.
	MaxConcurrency int
}

// knownFile is the in-memory shadow of one files row, loaded once at scan
// start and consulted during crawl classification without
// further row-store round trips.
type knownFile struct {
	hash            string
	mtime           int64
	size            int64
	vectorIndexHash *string
}
