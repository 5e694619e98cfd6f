//go:build windows

package supervisor

import "os"

// Windows has no process groups or SIGTERM; both stages kill outright.

func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killGroup(pid int) error { return terminateGroup(pid) }

func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
