// Package filex resolves and creates the client's data directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDataDir resolves dir and creates it with owner-only permissions.
// An absolute dir is used as is, "~/x" is taken relative to the home
// directory, and anything else relative to the working directory. The
// absolute path is returned.
func EnsureDataDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("data dir is empty")
	}

	var base string
	switch {
	case filepath.IsAbs(dir):
	case dir == "~" || strings.HasPrefix(dir, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home dir: %w", err)
		}
		base, dir = home, strings.TrimPrefix(strings.TrimPrefix(dir, "~"), "/")
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		base = cwd
	}

	path := filepath.Clean(filepath.Join(base, dir))
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", path, err)
	}
	return path, nil
}
