//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcAttrs places the child in its own process group so signal
// escalation reaches the whole server process tree.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
