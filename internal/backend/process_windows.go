package backend

import (
	"os"
	"syscall"
)

func platformSysProcAttr() *syscall.SysProcAttr {
	return nil
}

// Windows has no SIGTERM; both paths end the process.
func terminate(proc *os.Process) error {
	return proc.Kill()
}

func kill(proc *os.Process) error {
	return proc.Kill()
}
