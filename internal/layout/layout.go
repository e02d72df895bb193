// Package layout resolves the on-disk paths for a project's persisted
// state, all rooted at ~/.contextweaver/<projectId>/ alongside the process
// lock file (see internal/lock).
package layout

import (
	"os"
	"path/filepath"
)

// ProjectDir returns ~/.contextweaver/<projectId>, creating it if absent.
func ProjectDir(projectID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".contextweaver", projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath returns the row store database path for a project.
func DBPath(projectID string) (string, error) {
	dir, err := ProjectDir(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "index.db"), nil
}

// VectorDir returns the vector store backing directory for a project.
func VectorDir(projectID string) (string, error) {
	dir, err := ProjectDir(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vectors.lance"), nil
}
