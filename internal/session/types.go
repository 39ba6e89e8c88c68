package session

import (
	"fmt"
	"log/slog"
	"time"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is how a recording session ended.
type Outcome int

const (
	// OutcomeInjected means text was delivered to the focused application.
	OutcomeInjected Outcome = iota + 1
	// OutcomeNoSpeech means the backend succeeded but recognized nothing.
	OutcomeNoSpeech
	// OutcomeFailed covers capture, transport, backend and injection errors.
	OutcomeFailed
	// OutcomeCancelled means the user discarded the recording.
	OutcomeCancelled
	// OutcomeSkipped means the recording was shorter than the minimum
	// duration and was never sent.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInjected:
		return "injected"
	case OutcomeNoSpeech:
		return "no_speech"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one finished session.
type Result struct {
	ID       string
	Outcome  Outcome
	Text     string
	Err      error
	Duration time.Duration // recorded audio length
}

// EventSink observes the controller. Calls happen on the dispatch goroutine
// and must not block.
type EventSink interface {
	StateChanged(id string, state State)
	Finished(r Result)
}

// LogSink reports sessions through slog.
type LogSink struct{}

func (LogSink) StateChanged(id string, state State) {
	slog.Info("[Session] "+state.String(), "session", id)
}

func (LogSink) Finished(r Result) {
	attrs := []any{"session", r.ID, "outcome", r.Outcome.String(), "audio", r.Duration.Round(time.Millisecond)}
	switch r.Outcome {
	case OutcomeInjected:
		slog.Info("[Session] transcribed", append(attrs, "text", r.Text)...)
	case OutcomeFailed:
		slog.Error("[Session] failed", append(attrs, "error", r.Err)...)
	case OutcomeNoSpeech:
		slog.Info("[Session] nothing heard", attrs...)
	default:
		slog.Info("[Session] finished", attrs...)
	}
}
