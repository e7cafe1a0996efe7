//go:build !windows

package procscan

import (
	"errors"

	"golang.org/x/sys/unix"
)

// PidAlive reports whether pid still exists, via the null signal. EPERM
// means the process exists but belongs to another user.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
