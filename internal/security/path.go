// Package security contains filesystem path validation shared by the config
// loader and the database layer.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath checks an operator-supplied local path such as the config
// file or database location. Absolute paths are fine since deployments keep
// these files outside the working directory; traversal segments and NUL
// bytes are not.
func ValidateFilePath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("file path cannot be empty")
	case strings.ContainsRune(path, '\x00'):
		return fmt.Errorf("file path contains NUL byte")
	case hasTraversalSegment(path):
		return fmt.Errorf("path contains directory traversal: %s", path)
	}
	return nil
}

// ValidateFilePathWithBase checks an untrusted relative path that must
// resolve under baseDir. Absolute paths are rejected here, unlike in
// ValidateFilePath, because the caller owns the base directory.
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	rel, err := filepath.Rel(filepath.Clean(baseDir), filepath.Join(baseDir, path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}
	return nil
}

// hasTraversalSegment reports whether a ".." element survives cleaning.
// Dots inside a filename, like "backup..old.db", are harmless and pass.
func hasTraversalSegment(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	return false
}
