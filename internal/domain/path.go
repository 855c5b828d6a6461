package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory is a path which denoted an existing directory when it was created.
// The filesystem may change afterwards; a Directory is never re-validated.
type Directory struct {
	path string
}

// NewDirectory validates that path is an existing directory
// Returns ErrNotFound if path doesn't exist
// Returns ErrNotDirectory if path is not a directory
func NewDirectory(path string) (Directory, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Directory{}, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Directory{}, fmt.Errorf("%w: '%s'", ErrNotFound, absPath)
		}
		return Directory{}, err
	}
	if !info.IsDir() {
		return Directory{}, fmt.Errorf("%w: '%s'", ErrNotDirectory, absPath)
	}

	return Directory{path: absPath}, nil
}

// UnsafeDirectory wraps path without checking the filesystem.
// Used for destinations which are created on demand.
func UnsafeDirectory(path string) Directory {
	return Directory{path: filepath.Clean(path)}
}

// Path returns the absolute path of the directory
func (d Directory) Path() string {
	return d.path
}

// Name returns the final element of the path
func (d Directory) Name() string {
	return filepath.Base(d.path)
}

// Join returns the path of elem inside this directory
func (d Directory) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// Exists reports whether the directory currently exists
func (d Directory) Exists() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

func (d Directory) String() string {
	return d.path
}

// DiskFile is a path which denoted an existing regular file when it was created.
// Size is captured at creation for progress accounting.
type DiskFile struct {
	path string
	size int64
}

// NewDiskFile validates that path is an existing regular file
// Returns ErrNotFound if path doesn't exist
// Returns ErrNotFile if path is not a regular file
func NewDiskFile(path string) (DiskFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return DiskFile{}, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DiskFile{}, fmt.Errorf("%w: '%s'", ErrNotFound, absPath)
		}
		return DiskFile{}, err
	}
	if !info.Mode().IsRegular() {
		return DiskFile{}, fmt.Errorf("%w: '%s'", ErrNotFile, absPath)
	}

	return DiskFile{path: absPath, size: info.Size()}, nil
}

// UnsafeDiskFile wraps path without requiring it to exist.
// The size is captured if the file happens to exist.
func UnsafeDiskFile(path string) DiskFile {
	f := DiskFile{path: filepath.Clean(path)}
	if info, err := os.Stat(f.path); err == nil && info.Mode().IsRegular() {
		f.size = info.Size()
	}
	return f
}

// Path returns the absolute path of the file
func (f DiskFile) Path() string {
	return f.path
}

// Size returns the length of the file in bytes, as captured at creation
func (f DiskFile) Size() int64 {
	return f.size
}

// Name returns the file name
func (f DiskFile) Name() string {
	return filepath.Base(f.path)
}

func (f DiskFile) String() string {
	return f.path
}

// RelativeFilePath is a path relative to some base directory.
// The last segment is the file name.
type RelativeFilePath struct {
	segments []string
}

// RelativePathFrom expresses target relative to base
// Returns ErrNotUnderBase if target is base itself or outside of it
func RelativePathFrom(base Directory, target string) (RelativeFilePath, error) {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return RelativeFilePath{}, err
	}

	rel, err := filepath.Rel(base.Path(), absTarget)
	if err != nil {
		return RelativeFilePath{}, fmt.Errorf("%w: '%s' in '%s'", ErrNotUnderBase, target, base)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return RelativeFilePath{}, fmt.Errorf("%w: '%s' in '%s'", ErrNotUnderBase, target, base)
	}

	return RelativeFilePath{segments: strings.Split(rel, string(filepath.Separator))}, nil
}

// NewRelativeFilePath builds a relative path from its segments, file name last
func NewRelativeFilePath(segments ...string) RelativeFilePath {
	copied := make([]string, len(segments))
	copy(copied, segments)
	return RelativeFilePath{segments: copied}
}

// WithPrefix returns a new path with one extra leading segment
func (r RelativeFilePath) WithPrefix(segment string) RelativeFilePath {
	return RelativeFilePath{segments: append([]string{segment}, r.segments...)}
}

// WithFileName returns a new path with the same directories and a different file name
func (r RelativeFilePath) WithFileName(name string) RelativeFilePath {
	if len(r.segments) == 0 {
		return NewRelativeFilePath(name)
	}
	segments := make([]string, len(r.segments))
	copy(segments, r.segments)
	segments[len(segments)-1] = name
	return RelativeFilePath{segments: segments}
}

// FileName returns the final segment
func (r RelativeFilePath) FileName() string {
	if len(r.segments) == 0 {
		return ""
	}
	return r.segments[len(r.segments)-1]
}

// Segments returns a copy of the path segments
func (r RelativeFilePath) Segments() []string {
	copied := make([]string, len(r.segments))
	copy(copied, r.segments)
	return copied
}

// Resolve returns the absolute path of this relative path inside base
func (r RelativeFilePath) Resolve(base Directory) string {
	return base.Join(r.segments...)
}

// String returns the path with forward slashes
func (r RelativeFilePath) String() string {
	return strings.Join(r.segments, "/")
}
