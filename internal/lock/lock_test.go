package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is far above any kernel's pid_max.
const deadPID = 2147483000

func writePID(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readContent(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gostt-relay.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", readContent(t, path))

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// releasing twice is harmless
	assert.NoError(t, l.Release())
}

func TestAcquireLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.lock")
	// the test runner's parent is certainly alive
	other := strconv.Itoa(os.Getppid())
	writePID(t, path, other+"\n")

	_, err := Acquire(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), other)
	assert.Equal(t, other+"\n", readContent(t, path), "foreign lock untouched")
}

func TestAcquireReclaimsStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead pid", strconv.Itoa(deadPID)},
		{"garbage", "not a pid"},
		{"empty", ""},
		{"negative", "-4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.lock")
			writePID(t, path, tt.content)

			l, err := Acquire(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", readContent(t, path))
			require.NoError(t, l.Release())
		})
	}
}

func TestAcquireOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.lock")
	writePID(t, path, strconv.Itoa(os.Getpid()))

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestReleaseLeavesForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.lock")
	l, err := Acquire(path)
	require.NoError(t, err)

	// another instance reclaimed it in the meantime
	writePID(t, path, "12345\n")
	require.NoError(t, l.Release())
	assert.Equal(t, "12345\n", readContent(t, path))
}

func TestConcurrentAcquireOneWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.lock")
	everyoneAlive := func(int32) (bool, error) { return true, nil }

	const racers = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		winners = make(chan int, racers)
		errs    = make(chan error, racers)
	)
	for i := range racers {
		pid := 40000 + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := acquire(path, pid, everyoneAlive); err != nil {
				errs <- err
				return
			}
			winners <- pid
		}()
	}
	close(start)
	wg.Wait()
	close(winners)
	close(errs)

	require.Len(t, winners, 1)
	winner := <-winners
	assert.Equal(t, strconv.Itoa(winner)+"\n", readContent(t, path))
	for err := range errs {
		assert.True(t, errors.Is(err, ErrAlreadyRunning), "unexpected error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging files cleaned up")
}

func TestAcquireAliveCheckError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.lock")
	writePID(t, path, "777\n")

	_, err := acquire(path, 778, func(int32) (bool, error) { return false, errors.New("proc unreadable") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check pid 777")
	assert.Equal(t, "777\n", readContent(t, path))
}
