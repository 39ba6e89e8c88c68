// Package session runs the record, transcribe and inject cycle in response
// to Toggle and Cancel signals.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/dispatch"
	"github.com/chaz8081/gostt-relay/internal/inject"
)

// KindDone is the dispatch kind carrying a finished transcription.
const KindDone dispatch.Kind = "session.done"

// Recorder captures one recording at a time.
type Recorder interface {
	Start() error
	Stop() *audio.Buffer
	Cancel()
}

// Transcriber turns a WAV container into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Options tunes the controller.
type Options struct {
	// MinDuration drops recordings shorter than this without sending them.
	MinDuration time.Duration
}

// Controller owns the session state machine. Toggle, Cancel and the
// completion handler run on the dispatcher goroutine; only the
// transcription and injection run elsewhere, one at a time.
type Controller struct {
	rec  Recorder
	tr   Transcriber
	inj  inject.Injector
	sink EventSink
	opts Options

	ctx   context.Context
	d     *dispatch.Dispatcher
	newID func() string
	wg    sync.WaitGroup

	mu    sync.Mutex // guards state for readers off the dispatch goroutine
	state State

	id string // dispatch goroutine only
}

type done struct {
	id     string
	result Result
}

// NewController creates a controller. A nil sink logs through slog.
func NewController(rec Recorder, tr Transcriber, inj inject.Injector, sink EventSink, opts Options) *Controller {
	if rec == nil || tr == nil || inj == nil {
		panic("session: NewController requires a recorder, transcriber and injector")
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Controller{
		rec:   rec,
		tr:    tr,
		inj:   inj,
		sink:  sink,
		opts:  opts,
		ctx:   context.Background(),
		newID: func() string { return uuid.NewString() },
	}
}

// Bind attaches the controller to d. ctx bounds in-flight transcriptions.
// Must be called before d.Run and before the first Toggle.
func (c *Controller) Bind(ctx context.Context, d *dispatch.Dispatcher) {
	c.ctx = ctx
	c.d = d
	d.Register(KindDone, c.onDone)
}

// State returns the current state. Safe from any goroutine.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a recording is in progress.
func (c *Controller) Active() bool {
	return c.State() == StateRecording
}

// Wait blocks until any in-flight transcription has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.sink.StateChanged(c.id, s)
}

// Toggle starts a recording when idle and stops it when recording. It is
// ignored while a transcription is in flight.
func (c *Controller) Toggle(time.Time) {
	switch c.State() {
	case StateIdle:
		c.start()
	case StateRecording:
		c.stop()
	case StateTranscribing:
		slog.Debug("[Session] toggle ignored while transcribing", "session", c.id)
	}
}

// Cancel discards an in-progress recording. It is ignored in any other
// state.
func (c *Controller) Cancel(time.Time) {
	if c.State() != StateRecording {
		return
	}
	c.rec.Cancel()
	r := Result{ID: c.id, Outcome: OutcomeCancelled}
	c.finish(r)
}

func (c *Controller) start() {
	c.id = c.newID()
	if err := c.rec.Start(); err != nil {
		c.sink.Finished(Result{ID: c.id, Outcome: OutcomeFailed, Err: err})
		c.id = ""
		return
	}
	c.setState(StateRecording)
}

func (c *Controller) stop() {
	buf := c.rec.Stop()
	if buf == nil {
		c.finish(Result{ID: c.id, Outcome: OutcomeFailed, Err: errors.New("session: recorder was not running")})
		return
	}
	dur := buf.Duration()
	if buf.Truncated {
		slog.Warn("[Session] recording hit the length limit, sending what was kept", "session", c.id, "duration", dur)
	}
	if dur < c.opts.MinDuration {
		c.finish(Result{ID: c.id, Outcome: OutcomeSkipped, Duration: dur})
		return
	}

	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		c.finish(Result{ID: c.id, Outcome: OutcomeFailed, Err: err, Duration: dur})
		return
	}

	c.setState(StateTranscribing)
	id := c.id
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		r := c.transcribe(id, wav)
		r.Duration = dur
		c.postDone(done{id: id, result: r})
	}()
}

// transcribe runs off the dispatch goroutine. Injection happens here too so
// that the clipboard transaction, including its restore delay, completes
// before the controller accepts another Toggle.
func (c *Controller) transcribe(id string, wav []byte) Result {
	log := slog.With("session", id)
	log.Debug("[Session] transcribing", "bytes", len(wav))

	text, err := c.tr.Transcribe(c.ctx, wav)
	if err != nil {
		return Result{ID: id, Outcome: OutcomeFailed, Err: fmt.Errorf("session: transcribe: %w", err)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{ID: id, Outcome: OutcomeNoSpeech}
	}
	if err := c.inj.Inject(text); err != nil {
		return Result{ID: id, Outcome: OutcomeFailed, Text: text, Err: fmt.Errorf("session: inject: %w", err)}
	}
	return Result{ID: id, Outcome: OutcomeInjected, Text: text}
}

func (c *Controller) postDone(ev done) {
	for {
		err := c.d.Post(dispatch.Event{Kind: KindDone, Data: ev})
		if err == nil || errors.Is(err, dispatch.ErrClosed) {
			return
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (c *Controller) onDone(ev dispatch.Event) {
	d, ok := ev.Data.(done)
	if !ok || d.id != c.id || c.State() != StateTranscribing {
		return
	}
	c.finish(d.result)
}

// finish returns to Idle and reports r.
func (c *Controller) finish(r Result) {
	c.setState(StateIdle)
	c.sink.Finished(r)
	c.id = ""
}
