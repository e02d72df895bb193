package graph

import (
	"regexp"
	"strings"
)

var (
	goSingleImportRe = regexp.MustCompile(`(?m)^\s*import\s+"([^"]+)"`)
	goBlockImportRe  = regexp.MustCompile(`(?s)import\s*\(([^)]*)\)`)
	goBlockLineRe    = regexp.MustCompile(`"([^"]+)"`)
)

type goResolver struct{}

func (goResolver) ExtractImports(content string) []string {
	var out []string
	for _, m := range goSingleImportRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	for _, block := range goBlockImportRe.FindAllStringSubmatch(content, -1) {
		for _, m := range goBlockLineRe.FindAllStringSubmatch(block[1], -1) {
			out = append(out, m[1])
		}
	}
	return out
}

func (goResolver) Resolve(importStr, importerPath string, pathSet map[string]bool) (string, bool) {
	if !strings.Contains(importStr, ".") && !strings.Contains(importStr, "/") {
		return "", false // standard-library-looking import
	}

	pkg := importStr
	if idx := strings.LastIndex(importStr, "/"); idx >= 0 {
		pkg = importStr[idx+1:]
	}
	suffix := "/" + pkg + "/"

	var nonTest, test string
	for p := range pathSet {
		if !strings.HasSuffix(p, ".go") {
			continue
		}
		dir := "/" + dirOf(p) + "/"
		if !strings.Contains(dir, suffix) {
			continue
		}
		if strings.HasSuffix(p, "_test.go") {
			if test == "" {
				test = p
			}
			continue
		}
		if nonTest == "" || p < nonTest {
			nonTest = p
		}
	}
	if nonTest != "" {
		return nonTest, true
	}
	if test != "" {
		return test, true
	}
	return "", false
}
