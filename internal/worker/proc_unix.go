//go:build !windows

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess puts the utility process in its own process group so a
// terminal interrupt reaches only the host, which then stops it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcess kills the utility process and the MCP servers it spawned.
func killProcess(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return p.Kill()
}
