package store

import (
	"regexp"
	"strings"
	"unicode"
)

// ftsOperatorChars are stripped from a query before segmentation so raw
// user input can never be interpreted as an FTS5 MATCH operator.
const ftsOperatorChars = `()":*^.\/:@#$%&=+[]{}<>|~` + "`" + `!?,;`

var ftsKeywordRegex = regexp.MustCompile(`(?i)\b(AND|OR|NOT|NEAR)\b`)

var nonWordSplitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// querySegmentStopWords are pure grammatical filler: dropped from the
// natural-language side of segmentation so a query like "the api key" isn't
// diluted by a lexical match on "the". Code identifiers like "key"/"err"
// are meaningful search terms here, not filler, and are not in this list.
var querySegmentStopWords = BuildStopWordMap([]string{
	"a", "an", "the", "of", "to", "in", "on", "at", "for", "and", "or",
	"is", "are", "was", "were", "be", "been", "with", "this", "that",
	"it", "as", "by", "from",
})

// sanitizeQuery strips FTS operator characters and reserved keywords,
// collapsing whitespace.
func sanitizeQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		if strings.ContainsRune(ftsOperatorChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	sanitized := ftsKeywordRegex.ReplaceAllString(b.String(), " ")
	return strings.Join(strings.Fields(sanitized), " ")
}

// hasCodeTokenShape reports whether token looks like an identifier: it
// contains '.', '_', '/', or a lowercase->uppercase boundary.
func hasCodeTokenShape(token string) bool {
	if strings.ContainsAny(token, "._/") {
		return true
	}
	runes := []rune(token)
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			return true
		}
	}
	return false
}

// stripSeparators removes '.', '_', '/' from a token ("api_key" -> "apikey").
func stripSeparators(token string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '/':
			return -1
		}
		return r
	}, token)
}

// camelToSnake converts a camelCase/PascalCase token to snake_case.
func camelToSnake(token string) string {
	var b strings.Builder
	runes := []rune(token)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// snakeToCamel converts a snake_case token to camelCase.
func snakeToCamel(token string) string {
	parts := strings.Split(token, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(strings.ToLower(p))
			continue
		}
		runes := []rune(strings.ToLower(p))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// codeTokenVariants returns the lowercase original, separator-stripped, and
// camelCase<->snake_case converted forms of a code-shaped token.
func codeTokenVariants(original string) []string {
	lower := strings.ToLower(original)
	variants := []string{lower, stripSeparators(lower)}

	if strings.Contains(original, "_") {
		variants = append(variants, snakeToCamel(original))
	} else {
		variants = append(variants, camelToSnake(original))
	}

	variants = append(variants, TokenizeCode(original)...)

	return variants
}

// segmentNaturalLanguage splits text into word-like segments. Unicode
// letters/digits form runs; CJK ideographs (which carry no whitespace
// boundaries) are additionally split one codepoint at a time so they are
// searchable without a dedicated locale-aware segmenter.
func segmentNaturalLanguage(text string) []string {
	var segments []string
	for _, run := range nonWordSplitRegex.Split(text, -1) {
		if run == "" {
			continue
		}
		if containsCJK(run) {
			for _, r := range run {
				segments = append(segments, string(r))
			}
			continue
		}
		segments = append(segments, run)
	}
	return segments
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}

// SegmentQuery implements the shared query segmentation used by lexical
// recall and rerank/expansion scoring: sanitize, extract code-feature
// variants from the original (pre-sanitized) whitespace-split tokens,
// segment the sanitized text as natural language, then dedupe.
func SegmentQuery(query string) []string {
	sanitized := sanitizeQuery(query)

	seen := make(map[string]bool)
	var tokens []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tokens = append(tokens, t)
	}

	for _, original := range strings.Fields(query) {
		if hasCodeTokenShape(original) {
			for _, v := range codeTokenVariants(original) {
				add(v)
			}
		}
	}

	words := FilterStopWords(segmentNaturalLanguage(sanitized), querySegmentStopWords)
	for _, segment := range words {
		add(strings.ToLower(segment))
		for _, part := range TokenizeCode(segment) {
			add(part)
		}
	}

	// Adjacent natural-language words may spell out, space-separated, an
	// identifier that appears concatenated in code ("api key" / "apiKey").
	// Emit the concatenated, snake_case, and camelCase forms of each
	// adjacent pair as additional code-feature candidates.
	for i := 0; i+1 < len(words); i++ {
		a, b := strings.ToLower(words[i]), strings.ToLower(words[i+1])
		if a == "" || b == "" {
			continue
		}
		add(a + b)
		add(a + "_" + b)
		add(a + strings.ToUpper(b[:1]) + b[1:])
	}

	return tokens
}
