package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands environment variables, then a leading ~, in a file path.
// "~/data" and "$HOME/data" both become an absolute path under the home directory;
// a tilde anywhere else is left alone.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return homeDir, nil
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// DataDir returns $XDG_DATA_HOME/<app>, falling back to ~/.local/share/<app>
func DataDir(app string) (string, error) {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, app), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", app), nil
}

// EnsureParentDir creates the directory that will hold path
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
