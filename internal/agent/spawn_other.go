//go:build !unix

package agent

import "os/exec"

func detachProcess(cmd *exec.Cmd) {}
