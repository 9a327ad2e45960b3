//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// killTree sends SIGKILL to the process group led by pid, falling back to the
// single process when the group is already gone.
func killTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
