package essential

import (
	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/collection"
	"github.com/Ning0612/relocator/internal/domain"
)

// NoMediaFileName marks a directory whose media should not be indexed
const NoMediaFileName = ".nomedia"

// priorityFile is a file copied in the essential phase
type priorityFile struct {
	name     string
	optional bool
	// sqlite databases may have a rollback journal beside them
	journal bool
}

func (p priorityFile) names() []string {
	if p.journal {
		return []string{p.name, p.name + "-journal"}
	}
	return []string{p.name}
}

var priorityFiles = []priorityFile{
	{name: collection.FileName, journal: true},
	{name: "collection.media.db", optional: true},
	{name: NoMediaFileName, optional: true},
	{name: "collection.log", optional: true},
}

// FileNames returns the name of every file which may be migrated in the
// essential phase
func FileNames() []string {
	var names []string
	for _, p := range priorityFiles {
		names = append(names, p.names()...)
	}
	return names
}

// IsEssentialFileName reports whether name belongs to the essential phase
func IsEssentialFileName(name string) bool {
	for _, candidate := range FileNames() {
		if candidate == name {
			return true
		}
	}
	return false
}

// essentialFile is an existing essential file
type essentialFile struct {
	name string
	size int64
}

// listFiles returns the essential files present in dir. A missing required
// file is reported as MissingEssentialFileError.
func listFiles(fs adapter.FileSystem, dir domain.Directory) ([]essentialFile, error) {
	var files []essentialFile
	for _, p := range priorityFiles {
		for i, name := range p.names() {
			info, err := fs.Stat(dir.Join(name))
			if domain.IsNotFound(err) {
				// only the main file of a required entry must exist
				if !p.optional && i == 0 {
					return nil, &domain.MissingEssentialFileError{File: dir.Join(name)}
				}
				continue
			}
			if err != nil {
				return nil, err
			}
			if !info.IsFile() {
				return nil, &domain.MissingEssentialFileError{File: dir.Join(name)}
			}
			files = append(files, essentialFile{name: name, size: info.Size})
		}
	}
	return files, nil
}

// SpaceRequired returns the bytes needed to hold the essential files of dir
func SpaceRequired(fs adapter.FileSystem, dir domain.Directory) (int64, error) {
	files, err := listFiles(fs, dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, nil
}
