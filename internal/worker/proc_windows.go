//go:build windows

package worker

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
