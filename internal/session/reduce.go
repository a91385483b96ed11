package session

import (
	"fmt"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/matching"
)

// Reduce applies ev to s and returns the next state with the effects to run,
// in order. Events that do not apply to the current state are ignored.
func Reduce(s State, ev Event) (State, []Effect) {
	if s.closed {
		return s, nil
	}

	st := &step{s: s}
	switch e := ev.(type) {
	case SelectSentence:
		st.selectSentence(e.Text)
	case PracticeSentence:
		st.practiceSentence()
	case PracticeWord:
		st.practiceWord(e.Index)
	case PlaybackDone:
		st.playbackDone(e)
	case TimerFired:
		st.timerFired(e)
	case RecognizerStarted:
		st.recognizerStarted()
	case RecognizerEnded:
		st.recognizerEnded()
	case RecognizerResult:
		st.recognizerResult(e.Transcript)
	case RecognizerFailed:
		st.recognizerFailed(e.Code)
	case StartRejected:
		if st.s.rec == recStarting {
			// assume the recognizer is already running
			st.s.rec = recActive
		}
	case StopRejected:
		if st.s.rec == recStopping {
			st.recognizerEnded()
		}
	case Shutdown:
		st.stopRecognizer(true)
		st.cancelAll()
		st.s.pending = turnNone
		st.s.closed = true
	}
	return st.s, st.fx
}

type step struct {
	s  State
	fx []Effect
}

func (st *step) emit(e Effect) {
	st.fx = append(st.fx, e)
}

func (st *step) setTimer(k TimerKind, after time.Duration) {
	st.s.gens[k]++
	st.emit(SetTimer{Timer: k, Gen: st.s.gens[k], After: after})
}

func (st *step) cancelTimer(k TimerKind) {
	st.s.gens[k]++
	st.emit(CancelTimer{Timer: k})
}

func (st *step) cancelAll() {
	for k := TimerKind(0); k < timerCount; k++ {
		st.cancelTimer(k)
	}
}

// stopRecognizer requests the end of the running turn. A superseded turn is
// forgotten, so its end callback neither fails a drill nor changes the mode.
func (st *step) stopRecognizer(supersede bool) {
	if supersede {
		st.s.turn = turnNone
		st.dropQueued()
	}
	if st.s.rec == recStarting || st.s.rec == recActive {
		st.s.rec = recStopping
		st.emit(StopRecognizer{})
	}
}

func (st *step) selectSentence(text string) {
	st.stopRecognizer(true)
	st.cancelAll()

	s := &st.s
	s.text = text
	s.words = matching.Normalize(text)
	s.mode = domain.ModeIdle
	s.seq = matching.Sequence{}
	s.drill = matching.NewDrill()
	s.lastMatched = domain.NoIndex
	s.err = nil
	s.pending = turnNone
	s.prompt++
}

func (st *step) practiceSentence() {
	s := &st.s
	if s.mode == domain.ModePlayingPrompt || len(s.words) == 0 {
		return
	}

	if s.mode.Listening() {
		// let the running turn end before a new one is started
		st.stopRecognizer(true)
		s.mode = domain.ModeIdle
		st.setTimer(TimerRetry, s.timings.RestartDebounce)
		return
	}

	st.cancelTimer(TimerWrongClear)
	st.cancelTimer(TimerSuccessClear)
	st.cancelTimer(TimerJustMatched)
	st.cancelTimer(TimerIsolatedTurn)

	s.seq = matching.Sequence{}
	s.drill = matching.NewDrill()
	s.lastMatched = domain.NoIndex
	s.err = nil
	st.beginPrompt(turnSentence, s.text)
}

func (st *step) practiceWord(idx int) {
	s := &st.s
	if s.mode == domain.ModePlayingPrompt || idx < 0 || idx >= len(s.words) {
		return
	}

	st.cancelTimer(TimerIsolatedTurn)
	st.cancelTimer(TimerWrongClear)
	st.cancelTimer(TimerSuccessClear)
	st.cancelTimer(TimerJustMatched)

	// the sentence progress in s.seq is kept across the detour
	s.drill = s.drill.Focus(idx, s.words[idx])
	s.lastMatched = domain.NoIndex
	s.err = nil
	st.beginPrompt(turnWord, s.words[idx])
}

func (st *step) beginPrompt(kind turnKind, text string) {
	st.stopRecognizer(true)
	st.cancelTimer(TimerRetry)
	st.cancelTimer(TimerStartListening)

	s := &st.s
	s.prompt++
	s.pending = kind
	s.mode = domain.ModePlayingPrompt
	st.setTimer(TimerSafety, s.timings.PlaybackSafety)
	st.emit(Speak{Prompt: s.prompt, Text: text})
}

func (st *step) playbackDone(e PlaybackDone) {
	s := &st.s
	if e.Prompt != s.prompt || s.mode != domain.ModePlayingPrompt {
		return
	}
	st.cancelTimer(TimerSafety)
	s.mode = domain.ModeIdle

	if e.Err != nil {
		if s.pending == turnWord {
			s.drill = s.drill.Fail()
		}
		s.pending = turnNone
		s.err = &domain.SessionError{
			Kind:    domain.ErrorKindPlayback,
			Message: fmt.Sprintf("audio playback failed: %v", e.Err),
		}
		return
	}
	st.setTimer(TimerStartListening, s.timings.PostPlaybackDelay)
}

func (st *step) timerFired(e TimerFired) {
	s := &st.s
	if e.Timer < 0 || e.Timer >= timerCount || e.Gen != s.gens[e.Timer] {
		return
	}

	switch e.Timer {
	case TimerSafety:
		if s.mode != domain.ModePlayingPrompt {
			return
		}
		// a late playback completion must not start a turn
		s.prompt++
		s.mode = domain.ModeIdle
		if s.pending == turnWord {
			s.drill = s.drill.Fail()
		}
		s.pending = turnNone
		st.cancelTimer(TimerStartListening)

	case TimerStartListening:
		st.startTurn()

	case TimerRetry:
		if s.queued != turnNone {
			st.forceStart()
			return
		}
		st.practiceSentence()

	case TimerIsolatedTurn:
		if _, focused := s.drill.Focused(); !focused {
			return
		}
		switch {
		case s.turn == turnWord:
			st.stopRecognizer(false)
		case s.queued == turnWord:
			// the previous turn never ended, so this one never began
			st.dropQueued()
			st.failDrill()
		}

	case TimerWrongClear:
		if s.mode == domain.ModeWrongFeedback {
			s.mode = domain.ModeIdle
		}

	case TimerSuccessClear:
		s.drill = s.drill.ClearSuccess()

	case TimerJustMatched:
		s.lastMatched = domain.NoIndex
	}
}

func (st *step) startTurn() {
	s := &st.s
	kind := s.pending
	if kind == turnNone {
		return
	}
	s.pending = turnNone

	if kind == turnWord {
		if _, focused := s.drill.Focused(); !focused {
			return
		}
		s.mode = domain.ModeListeningIsolated
		st.setTimer(TimerIsolatedTurn, s.timings.IsolatedTurn)
	} else {
		s.mode = domain.ModeListeningSequential
	}

	switch s.rec {
	case recIdle:
		st.launch(kind)
	case recStopping:
		s.queued = kind
		st.setTimer(TimerRetry, s.timings.PlaybackSafety)
	default:
		// recognizer still running from an unacknowledged start; reuse it
		s.turn = kind
		s.lastSeq = 0
	}
}

func (st *step) launch(kind turnKind) {
	s := &st.s
	s.turn = kind
	s.rec = recStarting
	s.lastSeq = 0
	st.emit(StartRecognizer{})
}

func (st *step) recognizerStarted() {
	if st.s.rec == recStarting || st.s.rec == recIdle {
		st.s.rec = recActive
	}
}

func (st *step) recognizerResult(ev domain.TranscriptEvent) {
	s := &st.s
	if s.turn == turnNone || s.rec == recIdle {
		return
	}
	if ev.Seq != 0 {
		// redelivered or out-of-order events were already superseded
		if ev.Seq <= s.lastSeq {
			return
		}
		s.lastSeq = ev.Seq
	}

	batch := matching.TokenBatch{
		Final:   matching.NormalizeAll(ev.Final),
		Interim: matching.NormalizeAll(ev.Interim),
	}

	if s.turn == turnWord {
		d, ok := s.drill.Observe(batch)
		s.drill = d
		if ok {
			st.cancelTimer(TimerIsolatedTurn)
			st.setTimer(TimerSuccessClear, s.timings.SuccessClear)
			st.stopRecognizer(false)
		}
		return
	}

	seq, matched := s.seq.Advance(batch.Final, s.words)
	s.seq = seq
	if len(matched) > 0 {
		s.lastMatched = matched[len(matched)-1]
		st.setTimer(TimerJustMatched, s.timings.JustMatchedClear)
	}

	if _, focused := s.drill.Focused(); focused {
		return
	}
	if s.mode != domain.ModeCompleted && s.seq.Complete(len(s.words)) {
		s.mode = domain.ModeCompleted
		st.stopRecognizer(false)
	}
}

func (st *step) recognizerEnded() {
	s := &st.s
	ended := s.turn
	s.turn = turnNone
	s.rec = recIdle
	s.lastSeq = 0

	switch ended {
	case turnWord:
		st.cancelTimer(TimerIsolatedTurn)
		if _, focused := s.drill.Focused(); focused {
			st.failDrill()
		} else if s.mode.Listening() {
			s.mode = domain.ModeIdle
		}
	case turnSentence:
		if s.mode.Listening() {
			s.mode = domain.ModeIdle
		}
	}

	if s.queued != turnNone {
		kind := s.queued
		st.dropQueued()
		st.launch(kind)
	}
}

// dropQueued forgets the turn waiting for the previous end
func (st *step) dropQueued() {
	if st.s.queued == turnNone {
		return
	}
	st.s.queued = turnNone
	st.cancelTimer(TimerRetry)
}

// forceStart stops waiting for an end the recognizer never reported and
// starts the queued turn
func (st *step) forceStart() {
	s := &st.s
	kind := s.queued
	s.queued = turnNone
	s.turn = turnNone
	s.rec = recIdle
	st.launch(kind)
}

func (st *step) failDrill() {
	st.s.drill = st.s.drill.Fail()
	st.s.mode = domain.ModeWrongFeedback
	st.setTimer(TimerWrongClear, st.s.timings.WrongClear)
}

func (st *step) recognizerFailed(code string) {
	if benignErrors[code] {
		return
	}
	s := &st.s
	if s.turn == turnWord {
		st.cancelTimer(TimerIsolatedTurn)
	}
	s.drill = s.drill.Fail()
	s.turn = turnNone
	st.dropQueued()
	if s.mode.Listening() {
		s.mode = domain.ModeIdle
	}
	if s.rec != recIdle {
		// the recognizer reports its end after an error
		s.rec = recStopping
	}
	s.err = &domain.SessionError{
		Kind:    domain.ErrorKindRecognition,
		Message: fmt.Sprintf("microphone issue: %s", code),
	}
}
