//go:build !windows

package backend

import (
	"errors"
	"os"
	"syscall"
)

// The backend gets its own process group so that signals reach any
// workers it forks.
func platformSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminate(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGTERM)
}

func kill(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGKILL)
}

func signalGroup(proc *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-proc.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// not a group leader
		return proc.Signal(sig)
	}
	return err
}
