package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ProjectID derives a stable identifier for rootPath: the first 16 hex
// characters of its SHA-256 digest, taken over the absolute, cleaned path so
// that "." and an equivalent absolute path hash identically.
func ProjectID(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(h[:])[:16], nil
}
