// Package lock keeps a single instance running per user with an advisory
// PID file.
package lock

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrAlreadyRunning means a live process holds the lock.
var ErrAlreadyRunning = errors.New("lock: another instance is already running")

// Lock is a held PID file.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the lock at path. A lock left by a process that no longer
// exists, or one with unreadable content, is reclaimed.
func Acquire(path string) (*Lock, error) {
	return acquire(path, os.Getpid(), process.PidExists)
}

func acquire(path string, pid int, alive func(int32) (bool, error)) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock: create directory: %w", err)
	}

	// one reclaim at most; a second collision means someone else won
	for range 2 {
		err := publish(path, pid)
		if err == nil {
			return &Lock{path: path, pid: pid}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock: read %s: %w", path, err)
		}
		owner, err := parsePID(data)
		switch {
		case err != nil:
			slog.Warn("[Lock] unreadable lock file, reclaiming", "path", path, "error", err)
		case owner == pid:
			return &Lock{path: path, pid: pid}, nil
		default:
			ok, aerr := alive(int32(owner))
			if aerr != nil {
				return nil, fmt.Errorf("lock: check pid %d: %w", owner, aerr)
			}
			if ok {
				return nil, fmt.Errorf("%w (pid %d, lock file %s)", ErrAlreadyRunning, owner, path)
			}
			slog.Info("[Lock] reclaiming stale lock", "path", path, "dead_pid", owner)
		}
		if err := removeIfUnchanged(path, data); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (lost race for %s)", ErrAlreadyRunning, path)
}

// publish creates path holding pid, failing with fs.ErrExist if it is
// already there. The content is staged first so a reader never sees a
// partial file.
func publish(path string, pid int) error {
	staged := fmt.Sprintf("%s.%d.tmp", path, pid)
	if err := atomic.WriteFile(staged, strings.NewReader(strconv.Itoa(pid)+"\n")); err != nil {
		return fmt.Errorf("lock: stage %s: %w", staged, err)
	}
	defer os.Remove(staged)

	if err := os.Link(staged, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("lock: create %s: %w", path, err)
	}
	return nil
}

// removeIfUnchanged deletes a stale lock unless another instance replaced it
// since it was read.
func removeIfUnchanged(path string, seen []byte) error {
	now, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock: read %s: %w", path, err)
	}
	if !bytes.Equal(now, seen) {
		return fmt.Errorf("%w (lost race for %s)", ErrAlreadyRunning, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: remove stale %s: %w", path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file if it still names this process.
func (l *Lock) Release() error {
	owner, err := readPID(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil || owner != l.pid {
		slog.Warn("[Lock] lock file no longer ours, leaving it", "path", l.path)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: remove %s: %w", l.path, err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parsePID(data)
}

func parsePID(data []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid > math.MaxInt32 {
		return 0, fmt.Errorf("lock: malformed pid %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}
