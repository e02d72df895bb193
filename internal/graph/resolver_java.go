package graph

import (
	"regexp"
	"strings"
)

var javaImportRe = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+(?:\.\*)?)\s*;`)

type javaResolver struct{}

func (javaResolver) ExtractImports(content string) []string {
	var out []string
	for _, m := range javaImportRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return out
}

func (javaResolver) Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	if strings.HasSuffix(importStr, ".*") {
		pkgDir := strings.ReplaceAll(strings.TrimSuffix(importStr, ".*"), ".", "/")
		suffix := "/" + pkgDir + "/"
		var best string
		for p := range pathSet {
			if !strings.HasSuffix(p, ".java") {
				continue
			}
			dir := "/" + dirOf(p) + "/"
			if dir == suffix || strings.HasSuffix(dir, suffix) {
				if best == "" || p < best {
					best = p
				}
			}
		}
		return best, best != ""
	}

	target := "/" + strings.ReplaceAll(importStr, ".", "/") + ".java"
	for p := range pathSet {
		if strings.HasSuffix("/"+p, target) {
			return p, true
		}
	}
	return "", false
}
