package conflict

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Ning0612/relocator/internal/domain"
)

const (
	// DirectoryName is the top-level directory receiving conflicted files
	DirectoryName = "conflict"

	// MaxDestinationNames is the number of candidate names tried for one conflicted file
	MaxDestinationNames = 5
)

// Candidates returns up to max file names for name: the name itself, then
// the name with " (n)" inserted before the extension, n = 1..max-1.
//
//	Candidates("tmp.txt", 3) => ["tmp.txt", "tmp (1).txt", "tmp (2).txt"]
func Candidates(name string, max int) []string {
	if max <= 0 {
		return nil
	}

	stem, ext := splitExtension(name)
	names := make([]string, 0, max)
	names = append(names, name)
	for n := 1; n < max; n++ {
		names = append(names, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
	return names
}

// splitExtension splits a file name into stem and extension.
// Dot files such as ".nomedia" have no extension.
func splitExtension(name string) (string, string) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		return name, ""
	}
	return stem, ext
}

// Destinations returns the candidate paths for a conflicted file whose path
// relative to the migrated directory is relative:
//
//	<topLevel>/conflict/<relative>, <topLevel>/conflict/<dir>/<stem> (1)<ext>, ...
func Destinations(topLevel domain.Directory, relative domain.RelativeFilePath) []string {
	intended := relative.WithPrefix(DirectoryName)

	names := Candidates(intended.FileName(), MaxDestinationNames)
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, intended.WithFileName(name).Resolve(topLevel))
	}
	return paths
}
