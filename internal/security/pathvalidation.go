// Package security validates externally supplied filesystem paths before the
// rest of the system opens them. Adapter configurations arrive over the HTTP
// API with a caller-chosen device path, so the path is checked against the
// directory it claims to live under rather than trusted as given.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports whether filePath stays inside safeDir
// once relative components and symlinks are resolved. Symlinks on the path
// and on its existing parents are followed, so a link planted inside safeDir
// cannot smuggle the target outside it. The file itself need not exist:
// serial devices are often configured before the adapter is plugged in, so
// only existing ancestors are resolved.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", safeDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves the symlinks in absPath. When the path itself does
// not exist, the nearest existing ancestor is resolved instead and the
// remaining components are joined back on, so a symlinked parent of a
// not-yet-created file still counts.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}

	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, rel)
		}
		if dir == filepath.Dir(dir) {
			// Walked to the root without finding anything that exists.
			return absPath
		}
	}
}
