package sourceadapter

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestDomainDetection(t *testing.T) {
	src := "hello world"
	t.Run("utf16 domain", func(t *testing.T) {
		a := New(src, len([]rune(src)))
		assert.Equal(t, DomainUTF16, a.Domain())
	})
	t.Run("utf8 domain", func(t *testing.T) {
		// Multibyte text so the byte length differs from the char length.
		mb := "héllo wörld"
		a := New(mb, len(mb))
		assert.Equal(t, DomainUTF8, a.Domain())
	})
	t.Run("unknown domain", func(t *testing.T) {
		a := New(src, 99999)
		assert.Equal(t, DomainUnknown, a.Domain())
	})
}

func TestNWSBasic(t *testing.T) {
	src := "a b\tc\nd"
	a := New(src, len([]rune(src)))
	require.Equal(t, DomainUTF16, a.Domain())
	// non-whitespace chars: a, b, c, d => 4
	assert.Equal(t, 4, a.TotalNWS())
	assert.Equal(t, 1, a.NWS(0, 1)) // "a"
	assert.Equal(t, 1, a.NWS(0, 2)) // "a "
}

func TestNWSAdditivity(t *testing.T) {
	src := "func greet() string { return \"hi there, how are you\" }"
	a := New(src, len([]rune(src)))
	for b := 0; b <= len(src); b += 3 {
		for c := b; c <= len(src); c += 5 {
			left := a.NWS(0, b)
			mid := a.NWS(b, c)
			whole := a.NWS(0, c)
			assert.Equal(t, whole, left+mid, "nws additivity failed for 0,%d,%d", b, c)
		}
	}
}

func TestUTF8DomainMultibyte(t *testing.T) {
	// "é" is 2 bytes in UTF-8, 1 char unit. "😀" is 4 bytes, 2 char units
	// (surrogate pair) in the 16-bit domain.
	src := "é😀x"
	byteLen := len(src)
	a := New(src, byteLen)
	require.Equal(t, DomainUTF8, a.Domain())

	// char domain length should be 1 (é) + 2 (😀 surrogate pair) + 1 (x) = 4
	assert.Equal(t, 4, a.CharLen())

	whole := a.Slice(0, byteLen)
	assert.Equal(t, src, whole)
}

func TestSliceRoundTrip(t *testing.T) {
	src := "line one\nline two\nline three"
	a := New(src, len([]rune(src)))
	assert.Equal(t, src, a.Slice(0, len(src)))
	assert.Equal(t, "line one", a.Slice(0, 8))
}
