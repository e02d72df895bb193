package scanner

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeToUTF8 normalizes raw file bytes to a UTF-8 string: a BOM, if
// present, takes priority and identifies UTF-8/UTF-16; otherwise bytes that
// already validate as UTF-8 are used as-is, and anything else falls back to
// a Windows-1252 decode (the common case for legacy-encoded source files)
// before being treated as binary.
func decodeToUTF8(raw []byte) (string, bool) {
	if decoded, ok := decodeBOM(raw); ok {
		return decoded, true
	}
	if utf8.Valid(raw) {
		return string(raw), true
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func decodeBOM(raw []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), true
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
		if bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) {
			dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
		}
		out, err := dec.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	default:
		return "", false
	}
}

// isBinary reports whether decoded content still contains a NUL byte, the
// signal used to treat a file as binary after encoding normalization.
func isBinary(content string) bool {
	return strings.ContainsRune(content, 0)
}
