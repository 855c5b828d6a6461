package domain

import "time"

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeOther
)

// FileInfo represents metadata about a file or directory
type FileInfo struct {
	// Name is the final element of Path
	Name string

	// Path is the absolute path of the entry
	Path string

	// Type indicates if this is a file, directory, or symlink
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}
