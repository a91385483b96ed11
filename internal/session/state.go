// Package session implements the practice session controller.
//
// The controller is a pure reducer: Reduce takes a State and an Event and
// returns the next State together with the effects to run (speak a prompt,
// start or stop the recognizer, set or cancel a timer). Runner executes those
// effects against real collaborators and feeds their outcomes back as events.
package session

import (
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/matching"
)

// Timings holds the session delays
type Timings struct {
	PlaybackSafety    time.Duration
	PostPlaybackDelay time.Duration
	RestartDebounce   time.Duration
	IsolatedTurn      time.Duration
	WrongClear        time.Duration
	SuccessClear      time.Duration
	JustMatchedClear  time.Duration
}

// DefaultTimings returns the standard delays
func DefaultTimings() Timings {
	return Timings{
		PlaybackSafety:    10 * time.Second,
		PostPlaybackDelay: 300 * time.Millisecond,
		RestartDebounce:   100 * time.Millisecond,
		IsolatedTurn:      6 * time.Second,
		WrongClear:        2 * time.Second,
		SuccessClear:      2 * time.Second,
		JustMatchedClear:  800 * time.Millisecond,
	}
}

type turnKind int

const (
	turnNone turnKind = iota
	turnSentence
	turnWord
)

// recState is the controller's view of the recognizer lifecycle
type recState int

const (
	recIdle recState = iota
	recStarting
	recActive
	recStopping
)

// benignErrors are recognizer codes that never surface to the learner
var benignErrors = map[string]bool{
	"no-speech": true,
	"aborted":   true,
}

// State is the complete controller state. It is a value: Reduce never mutates
// the State it is given.
type State struct {
	timings Timings

	text  string
	words []string

	mode        domain.Mode
	seq         matching.Sequence
	drill       matching.Drill
	lastMatched int
	err         *domain.SessionError

	prompt  uint64   // generation of the in-flight prompt
	pending turnKind // turn to start once the prompt was played
	turn    turnKind // turn the recognizer is running for
	queued  turnKind // turn waiting for the previous one to end
	rec     recState
	lastSeq uint64

	gens   [timerCount]uint64
	closed bool
}

// New returns an idle state with no sentence
func New(t Timings) State {
	return State{
		timings:     t,
		mode:        domain.ModeIdle,
		drill:       matching.NewDrill(),
		lastMatched: domain.NoIndex,
	}
}

// Words returns the normalized target words
func (s State) Words() []string {
	return s.words
}

// Mode returns the active mode
func (s State) Mode() domain.Mode {
	return s.mode
}

// Snapshot derives the observable state
func (s State) Snapshot() domain.Snapshot {
	focused, isFocused := s.drill.Focused()
	if !isFocused {
		focused = domain.NoIndex
	}
	success, ok := s.drill.Success()
	if !ok {
		success = domain.NoIndex
	}

	snap := domain.Snapshot{
		Mode:            s.mode,
		Matched:         s.seq.Matched(),
		LastMatched:     s.lastMatched,
		Focused:         focused,
		CharMatchCount:  s.drill.CharCount(),
		IsolatedSuccess: success,
		Wrong:           s.mode == domain.ModeWrongFeedback,
		Completed:       s.mode == domain.ModeCompleted,
		Speaking:        s.mode == domain.ModePlayingPrompt,
		Listening:       s.mode.Listening(),
		Error:           s.err,
	}
	if snap.Wrong {
		snap.NearMiss = s.drill.NearMiss()
	}
	snap.Status = domain.StatusFor(snap.Speaking, snap.Wrong, snap.Listening, snap.Completed, isFocused)
	return snap
}
