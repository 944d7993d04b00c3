// Package filex resolves and creates the on-disk locations the CLI uses.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureSubdDir creates dirName under the current working directory.
func EnsureSubdDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	return EnsureDir(filepath.Join(cwd, dirName))
}

// EnsureDir creates dir (and parents) if missing and returns it unchanged.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// DataDir returns the directory that holds the device database. An explicit
// override wins; otherwise it is <user config dir>/<app>.
func DataDir(override, app string) (string, error) {
	if override != "" {
		return EnsureDir(override)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return EnsureSubdDir("." + app)
	}
	return EnsureDir(filepath.Join(base, app))
}
