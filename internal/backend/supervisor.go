// Package backend supervises the external transcription process and the
// unix socket it listens on.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrStartTimeout means the backend did not open its endpoint within
	// StartAttempts probes.
	ErrStartTimeout = errors.New("backend: endpoint did not come up")
	// ErrRestartsExhausted means automatic restarts hit MaxRestarts.
	ErrRestartsExhausted = errors.New("backend: restart attempts exhausted")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("backend: supervisor stopped")
)

// State is the supervisor lifecycle state.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateHealthy
	StateUnhealthy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Supervisor.
type Options struct {
	Command    []string
	Dir        string
	Env        []string
	SocketPath string

	StartAttempts int
	StartInterval time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	StopTimeout   time.Duration
	// MaxRestarts bounds consecutive automatic restarts from Run. A start
	// triggered by Endpoint is always attempted.
	MaxRestarts int
}

func (o *Options) setDefaults() {
	if o.StartAttempts <= 0 {
		o.StartAttempts = 60
	}
	if o.StartInterval <= 0 {
		o.StartInterval = 500 * time.Millisecond
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 5 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 3 * time.Second
	}
}

// Status is a snapshot of the supervisor.
type Status struct {
	State               State
	Endpoint            string
	Pid                 int
	External            bool // adopted a backend we did not launch
	ConsecutiveFailures int
	LastHealthyAt       time.Time
}

// Supervisor owns one backend process and its endpoint.
type Supervisor struct {
	opts     Options
	launcher Launcher

	// startMu serializes start, restart and stop sequences.
	startMu sync.Mutex

	mu          sync.Mutex
	state       State
	proc        Process
	external    bool
	failures    int
	lastHealthy time.Time
	exhausted   bool

	wake     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a supervisor. A nil launcher runs the command with os/exec.
func New(opts Options, launcher Launcher) *Supervisor {
	opts.setDefaults()
	if launcher == nil {
		launcher = ExecLauncher{WaitDelay: opts.StopTimeout}
	}
	return &Supervisor{
		opts:     opts,
		launcher: launcher,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Status returns a snapshot of the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:               s.state,
		Endpoint:            s.opts.SocketPath,
		External:            s.external,
		ConsecutiveFailures: s.failures,
		LastHealthyAt:       s.lastHealthy,
	}
	if s.proc != nil {
		st.Pid = s.proc.Pid()
	}
	return st
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	if st == StateHealthy {
		s.lastHealthy = time.Now()
	}
	s.mu.Unlock()
	if prev != st {
		slog.Debug("[Backend] state", "from", prev, "to", st)
	}
}

func (s *Supervisor) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// Start brings the backend up if it is not already healthy. It blocks until
// the endpoint accepts connections or StartAttempts probes have failed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.isStopped() {
		return ErrStopped
	}
	if s.Status().State == StateHealthy {
		return nil
	}
	return s.launch(ctx)
}

// Endpoint returns the socket path once the backend is reachable, starting
// or restarting it first if needed. Callers dial a fresh connection per
// request.
func (s *Supervisor) Endpoint(ctx context.Context) (string, error) {
	if s.isStopped() {
		return "", ErrStopped
	}
	if s.Status().State == StateHealthy {
		if err := Probe(ctx, s.opts.SocketPath, s.opts.ProbeTimeout); err == nil {
			return s.opts.SocketPath, nil
		}
		slog.Warn("[Backend] endpoint unreachable, restarting before request")
		s.markUnhealthy()
	}
	if err := s.Start(ctx); err != nil {
		return "", err
	}
	return s.opts.SocketPath, nil
}

// Probe test-connects the endpoint and updates the state: a failed probe
// of a healthy backend marks it unhealthy.
func (s *Supervisor) Probe(ctx context.Context) error {
	err := Probe(ctx, s.opts.SocketPath, s.opts.ProbeTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.state == StateHealthy {
			s.state = StateUnhealthy
			slog.Warn("[Backend] health probe failed", "path", s.opts.SocketPath, "error", err)
		}
		return fmt.Errorf("backend: probe: %w", err)
	}
	if s.state == StateHealthy {
		s.lastHealthy = time.Now()
	}
	return nil
}

func (s *Supervisor) markUnhealthy() {
	s.mu.Lock()
	if s.state == StateHealthy {
		s.state = StateUnhealthy
	}
	s.mu.Unlock()
}

// Nudge asks Run to probe now instead of waiting for the next tick.
func (s *Supervisor) Nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run probes the backend every ProbeInterval and restarts it when it stops
// answering, up to MaxRestarts consecutive failed restarts. It returns when
// ctx is cancelled or the supervisor is stopped; it does not stop the
// backend.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		var exited <-chan struct{}
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc != nil {
			exited = proc.Done()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case <-ticker.C:
		case <-s.wake:
		case <-exited:
			s.reapExited(proc)
		}
		s.check(ctx)
	}
}

// reapExited records an unexpected exit of p, unless p has already been
// replaced.
func (s *Supervisor) reapExited(p Process) {
	s.mu.Lock()
	if s.proc != p {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	if s.state == StateHealthy {
		s.state = StateUnhealthy
	}
	s.mu.Unlock()
	slog.Warn("[Backend] process exited", "pid", p.Pid(), "error", p.Err())
}

func (s *Supervisor) check(ctx context.Context) {
	switch s.Status().State {
	case StateHealthy:
		if err := s.Probe(ctx); err == nil {
			return
		}
	case StateUnhealthy:
	default:
		return
	}
	if err := s.Restart(ctx); err != nil && !errors.Is(err, ErrStopped) {
		if errors.Is(err, ErrRestartsExhausted) {
			return
		}
		slog.Error("[Backend] restart failed", "error", err)
	}
}

// Restart tears down the current process and starts a new one. It counts
// toward MaxRestarts; once the bound is reached it returns
// ErrRestartsExhausted without trying until a start succeeds some other way.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.isStopped() {
		return ErrStopped
	}
	s.mu.Lock()
	if s.state == StateHealthy {
		s.mu.Unlock()
		return nil
	}
	if s.failures >= s.opts.MaxRestarts {
		first := !s.exhausted
		s.exhausted = true
		s.mu.Unlock()
		if first {
			slog.Error("[Backend] giving up on automatic restarts", "attempts", s.opts.MaxRestarts)
		}
		return ErrRestartsExhausted
	}
	s.mu.Unlock()

	slog.Info("[Backend] restarting")
	return s.launch(ctx)
}

// launch runs the start sequence. startMu must be held.
func (s *Supervisor) launch(ctx context.Context) error {
	s.setState(StateStarting)

	s.mu.Lock()
	old := s.proc
	s.proc = nil
	s.external = false
	s.mu.Unlock()
	if old != nil {
		if err := stopProcess(old, s.opts.StopTimeout); err != nil {
			slog.Warn("[Backend] stopping previous process", "error", err)
		}
	}

	if _, err := CleanStaleEndpoint(ctx, s.opts.SocketPath, s.opts.ProbeTimeout); err != nil {
		return s.startFailed(err)
	}
	if Probe(ctx, s.opts.SocketPath, s.opts.ProbeTimeout) == nil {
		// someone else is serving; use it rather than fight over the path
		slog.Warn("[Backend] endpoint already served by another process, adopting it", "path", s.opts.SocketPath)
		s.mu.Lock()
		s.external = true
		s.mu.Unlock()
		return s.startSucceeded()
	}

	proc, err := s.launcher.Launch(Spec{Args: s.opts.Command, Dir: s.opts.Dir, Env: s.opts.Env})
	if err != nil {
		return s.startFailed(err)
	}
	slog.Info("[Backend] launched", "pid", proc.Pid(), "command", s.opts.Command, "endpoint", s.opts.SocketPath)
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	if err := s.waitReady(ctx, proc); err != nil {
		s.mu.Lock()
		s.proc = nil
		s.mu.Unlock()
		if serr := stopProcess(proc, s.opts.StopTimeout); serr != nil {
			slog.Warn("[Backend] stopping failed process", "error", serr)
		}
		return s.startFailed(err)
	}
	return s.startSucceeded()
}

func (s *Supervisor) waitReady(ctx context.Context, proc Process) error {
	ticker := time.NewTicker(s.opts.StartInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.opts.StartAttempts; attempt++ {
		if Probe(ctx, s.opts.SocketPath, s.opts.ProbeTimeout) == nil {
			slog.Debug("[Backend] endpoint ready", "attempt", attempt)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopped:
			return ErrStopped
		case <-proc.Done():
			return fmt.Errorf("backend: process exited during startup: %v", proc.Err())
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrStartTimeout, s.opts.StartAttempts)
}

func (s *Supervisor) startSucceeded() error {
	s.mu.Lock()
	s.failures = 0
	s.exhausted = false
	s.mu.Unlock()
	s.setState(StateHealthy)
	return nil
}

func (s *Supervisor) startFailed(err error) error {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	if errors.Is(err, ErrStopped) {
		return err
	}
	s.setState(StateUnhealthy)
	return err
}

// Stop terminates the backend and removes its endpoint. The supervisor
// cannot be restarted afterwards.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	proc := s.proc
	external := s.external
	s.proc = nil
	s.mu.Unlock()
	s.setState(StateStopped)

	var err error
	if proc != nil {
		err = stopProcess(proc, s.opts.StopTimeout)
	}
	if !external {
		removeEndpoint(s.opts.SocketPath)
	}
	return err
}
