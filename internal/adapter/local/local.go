package local

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Ning0612/relocator/internal/domain"
)

// TempSuffix is appended to a destination while its content is being copied
const TempSuffix = ".relocate.tmp"

// FileSystem implements adapter.FileSystem for the local disk
type FileSystem struct{}

// New creates a new local filesystem adapter
func New() *FileSystem {
	return &FileSystem{}
}

// List returns the immediate children of a directory
func (fs *FileSystem) List(path string) ([]domain.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // entry removed between listing and stat
		}
		result = append(result, fileInfoFromOS(filepath.Join(path, entry.Name()), info))
	}

	return result, nil
}

// Stat returns metadata for a single path
func (fs *FileSystem) Stat(path string) (domain.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return domain.FileInfo{}, mapError(err)
	}
	return fileInfoFromOS(path, info), nil
}

// Open opens a file for reading
func (fs *FileSystem) Open(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mapError(err)
	}
	if info.IsDir() {
		return nil, domain.ErrNotFile
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, mapError(err)
	}
	return file, nil
}

// CopyFile copies src to dst through a temporary sibling of dst
func (fs *FileSystem) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return mapError(err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return mapError(err)
	}

	// Write to temp file first for atomic operation
	tempPath := dst + TempSuffix
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return mapError(err)
	}

	_, copyErr := io.Copy(out, in)
	syncErr := out.Sync()
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(tempPath)
		return copyErr
	}
	if syncErr != nil {
		os.Remove(tempPath)
		return syncErr
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	if err := os.Rename(tempPath, dst); err != nil {
		os.Remove(tempPath)
		return mapError(err)
	}

	// Keep the modification time so a migrated file looks untouched
	_ = os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())
	return nil
}

// Rename atomically moves src to dst
func (fs *FileSystem) Rename(src, dst string) error {
	return mapError(os.Rename(src, dst))
}

// DeleteFile removes a regular file
func (fs *FileSystem) DeleteFile(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return mapError(err)
	}
	if info.IsDir() {
		return domain.ErrNotFile
	}
	return mapError(os.Remove(path))
}

// DeleteEmptyDirectory removes a directory which has no children
func (fs *FileSystem) DeleteEmptyDirectory(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return mapError(err)
	}
	if !info.IsDir() {
		return domain.ErrNotDirectory
	}
	return mapError(os.Remove(path))
}

// ReadLink returns the target of a symbolic link
func (fs *FileSystem) ReadLink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", mapError(err)
	}
	return target, nil
}

// Symlink creates path as a symbolic link to target
func (fs *FileSystem) Symlink(target, path string) error {
	return mapError(os.Symlink(target, path))
}

// MkdirAll creates a directory and any necessary parents
func (fs *FileSystem) MkdirAll(path string) error {
	return mapError(os.MkdirAll(path, 0755))
}

// FreeSpace returns the bytes available on the volume holding path
func (fs *FileSystem) FreeSpace(path string) (int64, error) {
	return freeSpace(path)
}

// fileInfoFromOS converts os.FileInfo to domain.FileInfo
func fileInfoFromOS(path string, info os.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeOther
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		fileType = domain.FileTypeSymlink
	case info.IsDir():
		fileType = domain.FileTypeDirectory
	case info.Mode().IsRegular():
		fileType = domain.FileTypeRegular
	}

	size := info.Size()
	if fileType == domain.FileTypeDirectory {
		size = 0
	}

	return domain.FileInfo{
		Name:    info.Name(),
		Path:    path,
		Type:    fileType,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	// os.IsExist also matches ENOTEMPTY, so this check must come first
	if errors.Is(err, syscall.ENOTEMPTY) {
		return domain.ErrDirectoryNotEmpty
	}
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if os.IsPermission(err) {
		return domain.ErrPermissionDenied
	}
	if os.IsExist(err) {
		return domain.ErrAlreadyExists
	}
	if errors.Is(err, syscall.ENOTDIR) {
		return domain.ErrNotDirectory
	}

	return err
}
