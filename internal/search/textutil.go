package search

import (
	"regexp"
	"strings"
	"sync"
)

// truncateMiddle collapses s to maxLen characters by keeping its head and
// tail and replacing the middle with an ellipsis, so identifying prefixes
// and suffixes (e.g. a breadcrumb's leaf segment) both survive truncation.
func truncateMiddle(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen || maxLen <= 3 {
		if maxLen <= 3 {
			if len(runes) <= maxLen {
				return s
			}
			return string(runes[:maxLen])
		}
		return s
	}
	keep := maxLen - 3
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}

// extractAroundHit returns up to maxLen characters of code centered on the
// first query token match, falling back to the code's head when no token
// hits or maxLen is non-positive.
func extractAroundHit(code string, queryTokens []string, maxLen int) string {
	runes := []rune(code)
	if maxLen <= 0 {
		return ""
	}
	if len(runes) <= maxLen {
		return code
	}

	hitAt := -1
	lower := strings.ToLower(code)
	for _, tok := range queryTokens {
		if tok == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(tok)); idx >= 0 {
			// Convert byte index to rune index.
			runeIdx := len([]rune(code[:idx]))
			if hitAt == -1 || runeIdx < hitAt {
				hitAt = runeIdx
			}
		}
	}

	if hitAt == -1 {
		return string(runes[:maxLen])
	}

	half := maxLen / 2
	start := hitAt - half
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}
	return string(runes[start:end])
}

var (
	wordBoundaryCache   = map[string]*regexp.Regexp{}
	wordBoundaryCacheMu sync.Mutex
)

func wordBoundaryRegexp(lt string) *regexp.Regexp {
	wordBoundaryCacheMu.Lock()
	defer wordBoundaryCacheMu.Unlock()
	if re, ok := wordBoundaryCache[lt]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(lt) + `\b`)
	wordBoundaryCache[lt] = re
	return re
}

// tokenOverlapScore scores a chunk's lexical relevance to query tokens: +1
// per token matched at a word boundary, +0.5 per token matched only as a
// substring.
func tokenOverlapScore(breadcrumb, displayCode string, tokens []string) float64 {
	haystack := strings.ToLower(breadcrumb + " " + displayCode)
	var score float64
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		lt := strings.ToLower(tok)
		re := wordBoundaryRegexp(lt)
		if re.MatchString(haystack) {
			score += 1
		} else if strings.Contains(haystack, lt) {
			score += 0.5
		}
	}
	return score
}
