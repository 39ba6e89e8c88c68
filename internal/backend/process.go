package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Spec describes how to launch the backend.
type Spec struct {
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// Process is a running backend.
type Process interface {
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err returns the exit error; valid after Done is closed.
	Err() error
	// Terminate asks the process (and its group, where supported) to exit.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
}

// Launcher starts backend processes.
type Launcher interface {
	Launch(spec Spec) (Process, error)
}

// ExecLauncher runs the backend as a child process with its output
// forwarded to the logger.
type ExecLauncher struct {
	// WaitDelay bounds how long Wait blocks on output pipes held open by
	// grandchildren after the child exits.
	WaitDelay time.Duration
}

func (l ExecLauncher) Launch(spec Spec) (Process, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("backend: empty command")
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = platformSysProcAttr()
	stdout := &lineLogger{stream: "stdout", level: slog.LevelDebug}
	stderr := &lineLogger{stream: "stderr", level: slog.LevelWarn}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("backend: start %s: %w", spec.Args[0], err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Terminate() error { return terminate(p.cmd.Process) }
func (p *execProcess) Kill() error      { return kill(p.cmd.Process) }

// stopProcess terminates p gracefully and kills it if it is still alive
// after timeout.
func stopProcess(p Process, timeout time.Duration) error {
	select {
	case <-p.Done():
		return nil
	default:
	}

	pid := p.Pid()
	if err := p.Terminate(); err != nil {
		slog.Debug("[Backend] terminate", "pid", pid, "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.Done():
		slog.Info("[Backend] process exited", "pid", pid)
		return nil
	case <-timer.C:
	}

	if alive, _ := pidAlive(pid); !alive {
		return nil
	}
	slog.Warn("[Backend] process ignored termination signal, killing", "pid", pid, "timeout", timeout)
	if err := p.Kill(); err != nil {
		return fmt.Errorf("backend: kill pid %d: %w", pid, err)
	}

	select {
	case <-p.Done():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("backend: pid %d did not exit after kill", pid)
	}
}

// pidAlive reports whether a process with the given id exists.
func pidAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return process.PidExistsWithContext(context.Background(), int32(pid))
}
