//go:build !windows

package supervisor

import "syscall"

// terminateGroup asks the server's process group to exit.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup force-terminates the server's process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// processAlive reports whether a signal can be delivered to the pid.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
