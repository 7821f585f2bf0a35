// Package fsops provides the filesystem access used by docplan.
//
// The planner only ever reads the filesystem: it walks the source tree, stats
// sources and artifacts and reads documents to find their references. The one
// mutation, creating an artifact's parent directory, belongs to the renderer
// wrapper. All of it goes through the FS interface so tests can substitute
// their own implementation.
//
// Key features:
//   - Lstat/Stat distinction for symlinked sources
//   - Deterministic (lexical) directory walks
//   - Path validation for references that must stay inside a root
package fsops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FS provides an abstraction for filesystem operations.
type FS interface {
	// Stat returns file info, following symlinks.
	Stat(path string) (os.FileInfo, error)

	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// WalkDir walks the tree rooted at root in lexical order.
	WalkDir(root string, fn fs.WalkDirFunc) error

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// ModTime returns the modification time of path. The boolean is false
	// when the path does not exist; any other failure is returned as error.
	ModTime(path string) (time.Time, bool, error)

	// ValidateRelPath validates a relative path for safety.
	ValidateRelPath(relPath string) error
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Stat returns file info, following symlinks.
func (fs *RealFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Lstat returns file info without following symlinks.
func (fs *RealFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// WalkDir walks the tree rooted at root in lexical order.
func (fs *RealFS) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// ReadFile reads the entire contents of a file.
func (fs *RealFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// MkdirAll creates a directory and all parent directories.
func (fs *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Exists checks if a path exists.
func (fs *RealFS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ModTime returns the modification time of path, following symlinks so a
// linked source is judged by its target.
func (fs *RealFS) ModTime(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), true, nil
}

// ValidateRelPath validates a relative path for safety.
// Returns an error if the path is empty, absolute or escapes its root.
func (fs *RealFS) ValidateRelPath(relPath string) error {
	return ValidateRelPath(relPath)
}

// ValidateRelPath is the stateless form of RealFS.ValidateRelPath, shared by
// implementations that do not touch the disk.
func ValidateRelPath(relPath string) error {
	cleaned := filepath.Clean(relPath)

	if cleaned == "" || cleaned == "." {
		return fmt.Errorf("invalid path: empty or current directory")
	}

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", cleaned)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", cleaned)
	}

	return nil
}

// IsWithin reports whether path equals root or lies below it. Both paths are
// cleaned first; neither needs to exist.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || ValidateRelPath(rel) == nil
}
