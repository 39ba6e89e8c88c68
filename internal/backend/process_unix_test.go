//go:build !windows

package backend

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecLauncherTerminate(t *testing.T) {
	requireShell(t)
	p, err := ExecLauncher{}.Launch(Spec{Args: []string{"sh", "-c", "echo started; exec sleep 30"}})
	require.NoError(t, err)
	assert.Greater(t, p.Pid(), 0)

	alive, err := pidAlive(p.Pid())
	require.NoError(t, err)
	assert.True(t, alive)

	start := time.Now()
	require.NoError(t, stopProcess(p, 2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second, "SIGTERM should be enough")
	<-p.Done()
	assert.Error(t, p.Err(), "terminated by signal")
}

func TestExecLauncherKillsStubbornProcess(t *testing.T) {
	requireShell(t)
	p, err := ExecLauncher{}.Launch(Spec{Args: []string{"sh", "-c", `trap "" TERM; sleep 30`}})
	require.NoError(t, err)
	// let the shell install its trap
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, stopProcess(p, 200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after kill")
	}
}

func TestExecLauncherEnvAndDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	p, err := ExecLauncher{}.Launch(Spec{
		Args: []string{"sh", "-c", `test "$ASR_MODEL" = tiny && test "$(pwd -P)" = "$(cd "$0" && pwd -P)"`, dir},
		Dir:  dir,
		Env:  []string{"ASR_MODEL=tiny"},
	})
	require.NoError(t, err)
	select {
	case <-p.Done():
		assert.NoError(t, p.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestExecLauncherMissingBinary(t *testing.T) {
	_, err := ExecLauncher{}.Launch(Spec{Args: []string{"/nonexistent/asr-server"}})
	assert.Error(t, err)
	_, err = ExecLauncher{}.Launch(Spec{})
	assert.Error(t, err)
}
