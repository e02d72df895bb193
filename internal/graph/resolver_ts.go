package graph

import (
	"regexp"
)

var (
	tsImportFromRe = regexp.MustCompile(`(?:import|export)\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`)
	tsDynamicRe    = regexp.MustCompile(`import\(\s*['"]([^'"]+)['"]\s*\)`)
	tsRequireRe    = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

type tsResolver struct{}

func (tsResolver) ExtractImports(content string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{tsImportFromRe, tsDynamicRe, tsRequireRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			out = append(out, m[1])
		}
	}
	return out
}

var tsExtCandidates = map[string][]string{
	".js":  {".ts", ".tsx", ".js", ".jsx"},
	".jsx": {".tsx", ".jsx", ".ts", ".js"},
	".mjs": {".mts", ".mjs"},
	".cjs": {".cts", ".cjs"},
}

var allTSExts = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts"}

func (tsResolver) Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	if len(importStr) == 0 || importStr[0] != '.' {
		return "", false // only relative paths per resolver contract
	}

	base := joinClean(dirOf(importerPath), importStr)

	// 1. original extension as written, if it has one and exists verbatim.
	if pathSet[base] {
		return base, true
	}

	origExt := extOf(base)
	stem := base
	if origExt != "" {
		stem = base[:len(base)-len(origExt)]
	}

	// 2. extension-mapping table for the written extension.
	if mapped, ok := tsExtCandidates[origExt]; ok {
		for _, ext := range mapped {
			cand := stem + ext
			if pathSet[cand] {
				return cand, true
			}
		}
	}

	// 3. try appending each candidate extension to the bare stem.
	for _, ext := range allTSExts {
		cand := stem + ext
		if pathSet[cand] {
			return cand, true
		}
	}

	// 4. directory barrel: <stem>/index.<ext>.
	for _, ext := range allTSExts {
		cand := stem + "/index" + ext
		if pathSet[cand] {
			return cand, true
		}
	}

	return "", false
}

func extOf(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}
