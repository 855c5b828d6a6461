//go:build windows

package local

import (
	"golang.org/x/sys/windows"
)

// freeSpace reports the bytes available to the calling user
func freeSpace(path string) (int64, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return 0, mapError(err)
	}
	return int64(freeBytesAvailable), nil
}
