package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentQuery_ApiKeyScenario(t *testing.T) {
	tokens := SegmentQuery("api key")

	for _, want := range []string{"apikey", "api_key", "apiKey", "api", "key"} {
		assert.Contains(t, tokens, want, "expected token %q in %v", want, tokens)
	}
}

func TestSegmentQuery_CodeShapedToken(t *testing.T) {
	tokens := SegmentQuery("get_user_by_id")
	assert.Contains(t, tokens, "get_user_by_id")
	assert.Contains(t, tokens, "getuserbyid")
	assert.Contains(t, tokens, "getUserById")
}

func TestSegmentQuery_StripsFTSOperators(t *testing.T) {
	tokens := SegmentQuery(`find "foo" AND bar*`)
	for _, tok := range tokens {
		assert.NotContains(t, tok, `"`)
		assert.NotContains(t, tok, "*")
	}
	assert.NotContains(t, tokens, "and")
}

func TestSegmentQuery_Deduplicates(t *testing.T) {
	tokens := SegmentQuery("key key key")
	count := 0
	for _, tok := range tokens {
		if tok == "key" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSegmentQuery_DropsGrammaticalFiller(t *testing.T) {
	tokens := SegmentQuery("what is the api key for")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "is")
	assert.NotContains(t, tokens, "for")
	assert.Contains(t, tokens, "api")
	assert.Contains(t, tokens, "key")
}

func TestSegmentQuery_CJKSplitsPerCharacter(t *testing.T) {
	tokens := SegmentQuery("你好世界")
	assert.Contains(t, tokens, "你")
	assert.Contains(t, tokens, "好")
}
