// Package graph implements GraphExpander: same-file-neighbor, breadcrumb-
// sibling, and cross-file import-graph expansion of a search seed set.
package graph

import (
	"path"
	"strings"
)

// Resolver extracts import strings from a file's source and resolves them
// against the project's known path set. Each supported language has its own
// Resolver; resolution failure returns ok=false and expansion simply skips
// that import (never an error).
type Resolver interface {
	ExtractImports(content string) []string
	Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool)
}

// resolverFor dispatches on the importer's extension.
func resolverFor(importerPath string) Resolver {
	ext := strings.ToLower(path.Ext(importerPath))
	switch ext {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts":
		return tsResolver{}
	case ".py":
		return pyResolver{}
	case ".go":
		return goResolver{}
	case ".java":
		return javaResolver{}
	case ".rs":
		return rustResolver{}
	default:
		return nil
	}
}

// IsBarrel reports whether path is a barrel/re-export file whose imports
// should be followed one extra hop.
func IsBarrel(p string) bool {
	switch {
	case strings.HasSuffix(p, "/__init__.py"):
		return true
	case strings.HasSuffix(p, "/mod.rs"):
		return true
	}
	base := path.Base(p)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name != "index" {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".ts", ".tsx", ".js", ".jsx", ".mts", ".mjs", ".cts", ".cjs":
		return true
	}
	return false
}

// dirOf returns the directory portion of a project-relative, /-normalized
// path, or "" for a root-level file.
func dirOf(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

func joinClean(dir, rel string) string {
	if dir == "" {
		return path.Clean(rel)
	}
	return path.Clean(dir + "/" + rel)
}
