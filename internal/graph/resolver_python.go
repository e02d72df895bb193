package graph

import (
	"regexp"
	"sort"
	"strings"
)

var (
	pyFromImportRe = regexp.MustCompile(`(?m)^\s*from\s+(\.*[\w.]*)\s+import\s`)
	pyImportRe     = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
)

type pyResolver struct{}

func (pyResolver) ExtractImports(content string) []string {
	var out []string
	for _, m := range pyFromImportRe.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		}
	}
	for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return out
}

func (pyResolver) Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	if strings.HasPrefix(importStr, ".") {
		return resolveRelativePython(importStr, importerPath, pathSet)
	}
	return resolveAbsolutePython(importStr, importerPath, pathSet)
}

func resolveRelativePython(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	dots := 0
	for dots < len(importStr) && importStr[dots] == '.' {
		dots++
	}
	rest := importStr[dots:]

	dir := dirOf(importerPath)
	// "walk up one directory per leading dot minus one": a single dot means
	// the current package (no ascent).
	for i := 0; i < dots-1; i++ {
		dir = dirOf(dir)
	}

	if rest == "" {
		return tryPythonPackage(dir, pathSet)
	}

	sub := strings.ReplaceAll(rest, ".", "/")
	target := joinClean(dir, sub)
	if pathSet[target+".py"] {
		return target + ".py", true
	}
	if pathSet[target+"/__init__.py"] {
		return target + "/__init__.py", true
	}
	return "", false
}

func tryPythonPackage(dir string, pathSet map[string]bool) (string, bool) {
	cand := joinClean(dir, "__init__.py")
	if pathSet[cand] {
		return cand, true
	}
	return "", false
}

func resolveAbsolutePython(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	sub := strings.ReplaceAll(importStr, ".", "/")
	suffixes := []string{"/" + sub + ".py", "/" + sub + "/__init__.py"}

	var candidates []string
	for p := range pathSet {
		full := "/" + p
		for _, suf := range suffixes {
			if strings.HasSuffix(full, suf) {
				candidates = append(candidates, p)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	importerDir := dirOf(importerPath)
	sort.Slice(candidates, func(i, j int) bool {
		ci := commonDirPrefixLen(importerDir, dirOf(candidates[i]))
		cj := commonDirPrefixLen(importerDir, dirOf(candidates[j]))
		if ci != cj {
			return ci > cj
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

func commonDirPrefixLen(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}
