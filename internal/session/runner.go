package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/rs/zerolog"
)

// Timer is a pending timer that can be stopped
type Timer interface {
	Stop() bool
}

// Clock schedules timer callbacks
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Runner drives a State with real collaborators. Every input, whether a user
// request, a recognizer callback, a playback completion or a timer, is queued
// and reduced one at a time; effects run outside the reducer in the order they
// were requested.
//
// Runner implements domain.RecognizerListener and registers itself with the
// recognizer on construction.
type Runner struct {
	recognizer domain.Recognizer
	speaker    domain.Speaker
	clock      Clock
	onSnapshot func(domain.Snapshot)
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	spawn  func(func())

	mu     sync.Mutex
	state  State
	queue  []Event
	busy   bool
	last   domain.Snapshot
	timers map[TimerKind]Timer
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithClock replaces the wall clock
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = l
	}
}

// WithExecutor replaces the goroutine that runs prompt playback
func WithExecutor(spawn func(func())) RunnerOption {
	return func(r *Runner) {
		r.spawn = spawn
	}
}

// WithSnapshotHandler registers a callback invoked after every event that
// changed the observable state. It runs on the dispatching goroutine.
func WithSnapshotHandler(fn func(domain.Snapshot)) RunnerOption {
	return func(r *Runner) {
		r.onSnapshot = fn
	}
}

// NewRunner creates a runner with an idle session
func NewRunner(rec domain.Recognizer, spk domain.Speaker, t Timings, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		recognizer: rec,
		speaker:    spk,
		clock:      SystemClock,
		log:        zerolog.Nop(),
		ctx:        ctx,
		cancel:     cancel,
		spawn:      func(f func()) { go f() },
		state:      New(t),
		timers:     make(map[TimerKind]Timer),
	}
	for _, o := range opts {
		o(r)
	}
	r.last = r.state.Snapshot()
	rec.Listen(r)
	return r
}

// Snapshot returns the current observable state
func (r *Runner) Snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// Select loads a sentence, resetting all progress
func (r *Runner) Select(text string) { r.Dispatch(SelectSentence{Text: text}) }

// PracticeSentence plays the sentence and listens for it
func (r *Runner) PracticeSentence() { r.Dispatch(PracticeSentence{}) }

// PracticeWord plays word idx and drills it
func (r *Runner) PracticeWord(idx int) { r.Dispatch(PracticeWord{Index: idx}) }

// Close shuts the session down. Pending timers are stopped and in-flight
// playback is cancelled; later events are ignored.
func (r *Runner) Close() {
	r.Dispatch(Shutdown{})
	r.cancel()
}

// OnStart implements domain.RecognizerListener
func (r *Runner) OnStart() { r.Dispatch(RecognizerStarted{}) }

// OnEnd implements domain.RecognizerListener
func (r *Runner) OnEnd() { r.Dispatch(RecognizerEnded{}) }

// OnResult implements domain.RecognizerListener
func (r *Runner) OnResult(ev domain.TranscriptEvent) { r.Dispatch(RecognizerResult{Transcript: ev}) }

// OnError implements domain.RecognizerListener
func (r *Runner) OnError(code string) { r.Dispatch(RecognizerFailed{Code: code}) }

// Dispatch queues ev. If no other goroutine is draining the queue, the
// caller drains it, including events queued by effects it runs.
func (r *Runner) Dispatch(ev Event) {
	r.mu.Lock()
	r.queue = append(r.queue, ev)
	if r.busy {
		r.mu.Unlock()
		return
	}
	r.busy = true

	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]

		state, effects := Reduce(r.state, next)
		r.state = state
		snap := state.Snapshot()
		changed := !snap.Equal(r.last)
		r.last = snap
		r.mu.Unlock()

		for _, e := range effects {
			r.apply(e)
		}
		if changed && r.onSnapshot != nil {
			r.onSnapshot(snap)
		}

		r.mu.Lock()
	}
	r.busy = false
	r.mu.Unlock()
}

// apply runs one effect. Only the draining goroutine calls it, so timers
// needs no extra locking.
func (r *Runner) apply(e Effect) {
	switch e := e.(type) {
	case Speak:
		r.spawn(func() {
			err := r.speaker.Speak(r.ctx, e.Text)
			r.Dispatch(PlaybackDone{Prompt: e.Prompt, Err: err})
		})

	case StartRecognizer:
		if err := r.recognizer.Start(); err != nil {
			r.logRecognizerError("start", err)
			r.Dispatch(StartRejected{})
		}

	case StopRecognizer:
		if err := r.recognizer.Stop(); err != nil {
			r.logRecognizerError("stop", err)
			r.Dispatch(StopRejected{})
		}

	case SetTimer:
		if t, ok := r.timers[e.Timer]; ok {
			t.Stop()
		}
		kind, gen := e.Timer, e.Gen
		r.timers[kind] = r.clock.AfterFunc(e.After, func() {
			r.Dispatch(TimerFired{Timer: kind, Gen: gen})
		})

	case CancelTimer:
		if t, ok := r.timers[e.Timer]; ok {
			t.Stop()
			delete(r.timers, e.Timer)
		}
	}
}

func (r *Runner) logRecognizerError(op string, err error) {
	ev := r.log.Warn()
	if errors.Is(err, domain.ErrInvalidState) {
		ev = r.log.Debug()
	}
	ev.Err(err).Str("op", op).Msg("Recognizer request ignored")
}
