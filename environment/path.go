package environment

import (
	"os"
	"path/filepath"
)

const (
	KeyHome = "HOME"

	FallbackDir = "/tmp"
)

// GetEnvDir joins elem to the value of the given environment variable. It
// falls back when the variable is unset or does not point to an existing
// directory.
func GetEnvDir(key, fallback string, elem ...string) string {
	v := os.Getenv(key)
	if fi, err := os.Stat(v); v == "" || err != nil || !fi.IsDir() {
		v = fallback
	}

	return filepath.Join(append([]string{v}, elem...)...)
}

// HomePath returns a path under the user's home directory, or under the
// shared temp directory when home is unavailable.
func HomePath(elem ...string) string {
	return GetEnvDir(KeyHome, FallbackDir, elem...)
}
