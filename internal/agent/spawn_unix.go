//go:build unix

package agent

import (
	"os/exec"
	"syscall"
)

// detachProcess puts the child in its own session so it survives the
// training process exiting or receiving SIGINT.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
