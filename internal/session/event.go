package session

import (
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
)

// Event is an input to Reduce
type Event interface {
	event()
}

// SelectSentence loads a new target sentence, or restarts the current one,
// with fresh match and drill state.
type SelectSentence struct {
	Text string
}

// PracticeSentence asks to play the whole sentence and then listen for it
type PracticeSentence struct{}

// PracticeWord asks to play one word and then drill it in isolation
type PracticeWord struct {
	Index int
}

// PlaybackDone reports the end of prompt playback
type PlaybackDone struct {
	Prompt uint64
	Err    error
}

// TimerFired reports that a timer set through SetTimer has elapsed
type TimerFired struct {
	Timer TimerKind
	Gen   uint64
}

// RecognizerStarted mirrors the recognizer's start callback
type RecognizerStarted struct{}

// RecognizerEnded mirrors the recognizer's end callback
type RecognizerEnded struct{}

// RecognizerResult carries a transcript event
type RecognizerResult struct {
	Transcript domain.TranscriptEvent
}

// RecognizerFailed carries a recognizer error code
type RecognizerFailed struct {
	Code string
}

// StartRejected reports that a start request failed synchronously
type StartRejected struct{}

// StopRejected reports that a stop request failed synchronously
type StopRejected struct{}

// Shutdown cancels all timers and stops the recognizer. Later events are ignored.
type Shutdown struct{}

func (SelectSentence) event()    {}
func (PracticeSentence) event()  {}
func (PracticeWord) event()      {}
func (PlaybackDone) event()      {}
func (TimerFired) event()        {}
func (RecognizerStarted) event() {}
func (RecognizerEnded) event()   {}
func (RecognizerResult) event()  {}
func (RecognizerFailed) event()  {}
func (StartRejected) event()     {}
func (StopRejected) event()      {}
func (Shutdown) event()          {}

// Effect is a side effect requested by Reduce
type Effect interface {
	effect()
}

// Speak plays text. Its completion must be reported with PlaybackDone carrying
// the same Prompt.
type Speak struct {
	Prompt uint64
	Text   string
}

// StartRecognizer requests a new recognition turn
type StartRecognizer struct{}

// StopRecognizer requests the end of the current turn
type StopRecognizer struct{}

// SetTimer replaces any pending timer of the same kind
type SetTimer struct {
	Timer TimerKind
	Gen   uint64
	After time.Duration
}

// CancelTimer drops the pending timer of a kind
type CancelTimer struct {
	Timer TimerKind
}

func (Speak) effect()           {}
func (StartRecognizer) effect() {}
func (StopRecognizer) effect()  {}
func (SetTimer) effect()        {}
func (CancelTimer) effect()     {}

// TimerKind names one of the session timers
type TimerKind int

const (
	// TimerSafety forces the session out of prompt playback
	TimerSafety TimerKind = iota
	// TimerStartListening delays the recognizer start after playback
	TimerStartListening
	// TimerRetry re-runs a sentence request once the old turn was stopped,
	// or force-starts a queued turn whose predecessor never reported its end
	TimerRetry
	// TimerIsolatedTurn bounds an isolated-word turn
	TimerIsolatedTurn
	// TimerWrongClear clears wrong feedback
	TimerWrongClear
	// TimerSuccessClear clears the isolated success marker
	TimerSuccessClear
	// TimerJustMatched clears the just-matched highlight
	TimerJustMatched

	timerCount
)

var timerNames = [timerCount]string{
	"safety", "start_listening", "retry", "isolated_turn", "wrong_clear", "success_clear", "just_matched",
}

func (k TimerKind) String() string {
	if k < 0 || k >= timerCount {
		return "unknown"
	}
	return timerNames[k]
}
