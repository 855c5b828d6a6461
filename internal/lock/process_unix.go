//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processExists reports whether pid is a live process.
// Signal 0 performs the permission and existence checks without signalling.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	// EPERM: the process exists but belongs to another user
	return err == nil || errors.Is(err, syscall.EPERM)
}
