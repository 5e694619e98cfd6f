//go:build windows

package supervisor

import "os/exec"

func setProcAttrs(_ *exec.Cmd) {}
