package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateStatePath validates a path used for local durable state (the
// outbox database and the fallback queue file). Relative and absolute
// paths are both accepted, but traversal components are rejected so a
// misconfigured path cannot escape its intended directory.
func ValidateStatePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains null byte")
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(cleanPath, string(filepath.Separator)) {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}
