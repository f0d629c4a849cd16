package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// ExpandHome replaces a leading `~` with the user's home directory. Everything else is kept
// as given, whitespace included.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = homeDir + path[1:]
		}
	}
	return path
}

// SanitizePath expands a leading `~` and strips all whitespace. Only meant for the tracking
// file path; it does not make the path absolute.
func SanitizePath(path string) string {
	return whitespace.ReplaceAllString(ExpandHome(path), "")
}

func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	return EnsureDir(dir)
}

func EnsureDir(path string) error {
	// already exists
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
