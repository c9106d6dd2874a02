// Package security guards the directories a remote caller may name, so a
// recording session can only be created inside the configured output tree.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path escapes its base directory.
var ErrOutsideDirectory = errors.New("path escapes base directory")

// ValidatePathWithinDirectory checks that path resolves inside baseDir.
// Symlinks are resolved on the longest existing prefix of path, so a link
// inside baseDir pointing elsewhere is rejected even when the final
// component does not exist yet. baseDir itself must exist.
func ValidatePathWithinDirectory(path, baseDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	canonicalBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalBase, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutsideDirectory, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrOutsideDirectory, path, baseDir)
	}
	return nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of an
// absolute path and re-appends the missing tail.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			tail, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, tail)
		}
		if filepath.Dir(dir) == dir {
			return absPath
		}
	}
}

// ResolveWithinDirectory turns a caller-supplied directory into a path
// under baseDir. Relative paths are taken relative to baseDir.
func ResolveWithinDirectory(path, baseDir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty directory")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.New("directory contains NUL byte")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(baseDir, resolved)
	}
	resolved = filepath.Clean(resolved)
	if err := ValidatePathWithinDirectory(resolved, baseDir); err != nil {
		return "", err
	}
	return resolved, nil
}
