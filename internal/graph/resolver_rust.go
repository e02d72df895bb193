package graph

import (
	"regexp"
	"strings"
)

var (
	rustModRe = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?mod\s+(\w+)\s*;`)
	rustUseRe = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+((?:crate|super|self)(?:::\w+)*)`)
)

type rustResolver struct{}

func (rustResolver) ExtractImports(content string) []string {
	var out []string
	for _, m := range rustModRe.FindAllStringSubmatch(content, -1) {
		out = append(out, "mod:"+m[1])
	}
	for _, m := range rustUseRe.FindAllStringSubmatch(content, -1) {
		out = append(out, "use:"+m[1])
	}
	return out
}

func (rustResolver) Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	switch {
	case strings.HasPrefix(importStr, "mod:"):
		name := strings.TrimPrefix(importStr, "mod:")
		dir := dirOf(importerPath)
		if cand := joinClean(dir, name+".rs"); pathSet[cand] {
			return cand, true
		}
		if cand := joinClean(dir, name+"/mod.rs"); pathSet[cand] {
			return cand, true
		}
		return "", false

	case strings.HasPrefix(importStr, "use:"):
		path := strings.TrimPrefix(importStr, "use:")
		parts := strings.Split(path, "::")
		root := parts[0]
		rest := parts[1:]

		var baseDir string
		switch root {
		case "crate":
			baseDir = srcRoot(importerPath)
		case "super":
			baseDir = dirOf(dirOf(importerPath))
		case "self":
			baseDir = dirOf(importerPath)
		default:
			return "", false
		}
		if len(rest) == 0 {
			return "", false
		}
		rel := strings.Join(rest, "/")
		p := joinClean(baseDir, rel)
		if cand := p + ".rs"; pathSet[cand] {
			return cand, true
		}
		if cand := p + "/mod.rs"; pathSet[cand] {
			return cand, true
		}
		return "", false

	default:
		return "", false
	}
}

// srcRoot walks up from importerPath to the nearest ancestor directory
// named "src", or "" if none is found.
func srcRoot(importerPath string) string {
	dir := dirOf(importerPath)
	for dir != "" {
		if dir == "src" || strings.HasSuffix(dir, "/src") {
			return dir
		}
		dir = dirOf(dir)
	}
	return ""
}
