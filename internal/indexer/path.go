package indexer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrRelativePath is returned when an absolute path is required.
	ErrRelativePath = errors.New("path is not absolute")
	// ErrOverlappingRoots is returned when one traversal root contains another.
	ErrOverlappingRoots = errors.New("overlapping traversal roots")
)

// AbsPath is a cleaned absolute filesystem path.
// It can only be obtained through NewAbsPath, so code accepting an AbsPath
// never has to handle relative paths.
type AbsPath struct {
	path string
}

// NewAbsPath validates that raw is absolute and returns it cleaned.
func NewAbsPath(raw string) (AbsPath, error) {
	if !filepath.IsAbs(raw) {
		return AbsPath{}, fmt.Errorf("%w: %q", ErrRelativePath, raw)
	}
	return AbsPath{path: filepath.Clean(raw)}, nil
}

// String returns the absolute path.
func (p AbsPath) String() string {
	return p.path
}

// IsZero reports whether p was not produced by NewAbsPath.
func (p AbsPath) IsZero() bool {
	return p.path == ""
}

// Join appends a single entry name to p.
func (p AbsPath) Join(name string) AbsPath {
	return AbsPath{path: filepath.Join(p.path, name)}
}

// Contains reports whether other is p itself or lies beneath it.
// The comparison is done per path component, so "/a" does not contain "/ab".
func (p AbsPath) Contains(other AbsPath) bool {
	if p.path == other.path {
		return true
	}
	prefix := p.path
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(other.path, prefix)
}

// ValidateRoots checks that no root equals or contains another root.
// It must pass before any root of a run is traversed.
func ValidateRoots(roots []AbsPath) error {
	if len(roots) == 0 {
		return fmt.Errorf("no traversal roots given")
	}
	for i, root := range roots {
		if root.IsZero() {
			return fmt.Errorf("%w: empty root", ErrRelativePath)
		}
		for j, other := range roots {
			if i == j {
				continue
			}
			if root.Contains(other) {
				return fmt.Errorf("%w: %s is inside %s", ErrOverlappingRoots, other, root)
			}
		}
	}
	return nil
}

// ParentPath returns the parent directory of an absolute path,
// or "" when path is the filesystem root.
func ParentPath(path string) string {
	parent := filepath.Dir(path)
	if parent == path {
		return ""
	}
	return parent
}
