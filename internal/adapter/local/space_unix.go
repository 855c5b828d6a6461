//go:build !windows

package local

import (
	"golang.org/x/sys/unix"
)

// freeSpace reports the bytes available to an unprivileged user
func freeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, mapError(err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
