package osutil

import (
	"os"
	"path/filepath"
	"strings"
)

// NormalizeFilePath expands environment variables in path, converts a
// leading "~" into the user's home directory, and returns a clean absolute
// path. Empty paths are returned untouched.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	expanded, err := expandHome(os.ExpandEnv(path))
	if err != nil {
		return "", err
	}

	return filepath.Abs(expanded)
}

// NormalizeCommand normalizes a command path in the same way as
// NormalizeFilePath, but only when the command exists on disk. Bare command
// names are left alone for PATH lookup at execution time.
func NormalizeCommand(commandPath string) (string, error) {
	if commandPath == "" {
		return "", nil
	}

	expanded, err := expandHome(os.ExpandEnv(commandPath))
	if err != nil {
		return "", err
	}

	if FileExists(expanded) {
		return filepath.Abs(expanded)
	}

	return commandPath, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
