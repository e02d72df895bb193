package lock

import (
	"os"
	"path/filepath"
)

// ProjectLockPath returns the lock file path for a given project id, rooted
// under the user's home directory as ~/.contextweaver/<projectId>/index.lock.
func ProjectLockPath(projectID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".contextweaver", projectID, "index.lock"), nil
}

// ForProject builds a Lock for the given project id under the standard
// per-project state directory.
func ForProject(projectID string) (*Lock, error) {
	path, err := ProjectLockPath(projectID)
	if err != nil {
		return nil, err
	}
	return New(path), nil
}
