package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Path validation errors.
var (
	ErrPathEscape  = errors.New("path escapes workspace root")
	ErrInvalidPath = errors.New("invalid path")
)

// escapes reports whether a filepath.Rel result climbs out of its base.
// "..." and "..foo" are valid names, not traversals.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SafeJoin joins root with a relative path and returns the absolute result,
// or ErrPathEscape if it lands outside root. Symlinks are not followed; use
// IsWithinDirReal for that.
func SafeJoin(root, relativePath string) (string, error) {
	if relativePath == "" || strings.ContainsRune(relativePath, '\x00') {
		return "", ErrInvalidPath
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(filepath.Join(root, relativePath))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absRoot, absJoined)
	if err != nil {
		return "", err
	}
	if escapes(rel) {
		return "", ErrPathEscape
	}
	return absJoined, nil
}

// Relative converts a path named by the assistant into one relative to
// root. Absolute paths are accepted only if they point inside root.
func Relative(root, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || strings.ContainsRune(path, '\x00') {
		return "", ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if escapes(rel) {
		return "", ErrPathEscape
	}
	return rel, nil
}

// resolvePathForContainment resolves symlinks for containment checks.
// For non-existent paths, it resolves the nearest existing ancestor and
// re-attaches the missing suffix.
func resolvePathForContainment(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	current := absPath
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// IsWithinDirReal checks whether target resolves inside root after
// following symlinks. Every read and write goes through this check.
func IsWithinDirReal(root, target string) (bool, error) {
	rootResolved, err := resolvePathForContainment(root)
	if err != nil {
		return false, err
	}
	targetResolved, err := resolvePathForContainment(target)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(rootResolved, targetResolved)
	if err != nil {
		return false, err
	}
	return !escapes(rel), nil
}
