//go:build unix

package companion

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcAttr starts the companion in its own process group so signals
// reach anything it spawns.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func processGroup(pid int) int {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return pid
	}

	return pgid
}

func sendSignal(pid, pgid int, sig unix.Signal) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	if pid <= 0 {
		return
	}

	_ = unix.Kill(pid, sig)
}

func terminate(p *process) {
	sendSignal(p.pid, p.pgid, unix.SIGTERM)
}

func kill(p *process) {
	sendSignal(p.pid, p.pgid, unix.SIGKILL)
}

// processAlive reports whether pid exists. EPERM means it exists under
// another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}

// signalOwner asks another mnemo process to shut down gracefully.
func signalOwner(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
