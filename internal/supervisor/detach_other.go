//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach puts the helper in its own session so terminal signals aimed at
// the host do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
