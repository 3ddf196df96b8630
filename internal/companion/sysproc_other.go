//go:build !unix

package companion

import (
	"os"
	"os/exec"
)

func configureProcAttr(*exec.Cmd) {}

func processGroup(int) int { return 0 }

func terminate(p *process) {
	if p.cmd.Process == nil {
		return
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = p.cmd.Process.Kill()
	}
}

func kill(p *process) {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	_ = proc.Release()

	return true
}

// signalOwner ends another mnemo process. Windows has no SIGTERM, so the
// owner cannot stop its companion first.
func signalOwner(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return proc.Kill()
}
