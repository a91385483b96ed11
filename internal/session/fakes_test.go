package session

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
)

// manualClock fires timers only when advanced
type manualClock struct {
	now    time.Duration
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	clock *manualClock
	id    int
	at    time.Duration
	fn    func()
}

func (t *manualTimer) Stop() bool {
	_, ok := t.clock.timers[t.id]
	delete(t.clock.timers, t.id)
	return ok
}

func newManualClock() *manualClock {
	return &manualClock{timers: make(map[int]*manualTimer)}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.nextID++
	t := &manualTimer{clock: c, id: c.nextID, at: c.now + d, fn: f}
	c.timers[t.id] = t
	return t
}

// Advance moves time forward, firing due timers in order
func (c *manualClock) Advance(d time.Duration) {
	end := c.now + d
	for {
		due := c.due(end)
		if due == nil {
			break
		}
		delete(c.timers, due.id)
		c.now = due.at
		due.fn()
	}
	c.now = end
}

func (c *manualClock) due(end time.Duration) *manualTimer {
	var list []*manualTimer
	for _, t := range c.timers {
		if t.at <= end {
			list = append(list, t)
		}
	}
	if len(list) == 0 {
		return nil
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].at != list[j].at {
			return list[i].at < list[j].at
		}
		return list[i].id < list[j].id
	})
	return list[0]
}

func (c *manualClock) Pending() int {
	return len(c.timers)
}

type recCall struct {
	op string
	at time.Duration
}

// fakeRecognizer acknowledges start and stop through the listener
type fakeRecognizer struct {
	clock    *manualClock
	listener domain.RecognizerListener
	running  bool
	calls    []recCall
	rejected int

	// silentStop suppresses the end callback on Stop
	silentStop bool
}

func (r *fakeRecognizer) Listen(l domain.RecognizerListener) {
	r.listener = l
}

func (r *fakeRecognizer) Start() error {
	r.calls = append(r.calls, recCall{op: "start", at: r.clock.now})
	if r.running {
		r.rejected++
		return domain.ErrInvalidState
	}
	r.running = true
	r.listener.OnStart()
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.calls = append(r.calls, recCall{op: "stop", at: r.clock.now})
	if !r.running {
		return domain.ErrInvalidState
	}
	r.running = false
	if !r.silentStop {
		r.listener.OnEnd()
	}
	return nil
}

// end simulates the recognizer ending by itself
func (r *fakeRecognizer) end() {
	r.running = false
	r.listener.OnEnd()
}

func (r *fakeRecognizer) count(op string) int {
	n := 0
	for _, c := range r.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type fakeSpeaker struct {
	spoken []string
	err    error
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return s.err
}

// harness wires a Runner to fakes. Playback only completes when the test
// calls finishPlayback.
type harness struct {
	t       *testing.T
	clock   *manualClock
	rec     *fakeRecognizer
	speaker *fakeSpeaker
	runner  *Runner
	pending []func()
	snaps   []domain.Snapshot
}

func newHarness(t *testing.T, sentence string) *harness {
	t.Helper()
	h := &harness{t: t, clock: newManualClock(), speaker: &fakeSpeaker{}}
	h.rec = &fakeRecognizer{clock: h.clock}
	h.runner = NewRunner(h.rec, h.speaker, DefaultTimings(),
		WithClock(h.clock),
		WithSnapshotHandler(func(s domain.Snapshot) { h.snaps = append(h.snaps, s) }),
		WithExecutor(func(f func()) { h.pending = append(h.pending, f) }),
	)
	if sentence != "" {
		h.runner.Select(sentence)
	}
	return h
}

// finishPlayback completes every in-flight prompt
func (h *harness) finishPlayback() {
	h.t.Helper()
	if len(h.pending) == 0 {
		h.t.Fatal("no playback in flight")
	}
	pending := h.pending
	h.pending = nil
	for _, f := range pending {
		f()
	}
}

// listen plays the prompt and waits for the recognizer to start
func (h *harness) listen() {
	h.t.Helper()
	h.finishPlayback()
	h.clock.Advance(DefaultTimings().PostPlaybackDelay)
	if !h.rec.running {
		h.t.Fatalf("recognizer not running after playback, mode %s", h.snap().Mode)
	}
}

func (h *harness) result(seq uint64, final, interim []string) {
	h.runner.OnResult(domain.TranscriptEvent{Seq: seq, Final: final, Interim: interim})
}

func (h *harness) snap() domain.Snapshot {
	return h.runner.Snapshot()
}
