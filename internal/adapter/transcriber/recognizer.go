package transcriber

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/rs/zerolog"
)

// Recognizer error codes reported through the listener
const (
	CodeNetwork  = "network"
	CodeNoSpeech = "no-speech"
)

// VoiceRecognizer turns whole voice recordings into recognizer events. A turn
// opens on Start and accepts recordings until Stop, or until no recording
// arrived for the idle timeout. Every transcript is delivered as one final
// event.
type VoiceRecognizer struct {
	transcriber domain.TranscriberPort
	locale      string
	idle        time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	listener domain.RecognizerListener
	running  bool
	turn     uint64
	seq      uint64
	timer    *time.Timer
}

// NewVoiceRecognizer creates a recognizer for one chat. A zero idle timeout
// keeps turns open until stopped.
func NewVoiceRecognizer(t domain.TranscriberPort, locale string, idle time.Duration, log zerolog.Logger) *VoiceRecognizer {
	return &VoiceRecognizer{
		transcriber: t,
		locale:      locale,
		idle:        idle,
		log:         log,
	}
}

// Listen implements domain.Recognizer
func (r *VoiceRecognizer) Listen(l domain.RecognizerListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

// Start implements domain.Recognizer
func (r *VoiceRecognizer) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return domain.ErrInvalidState
	}
	r.running = true
	r.turn++
	r.seq = 0
	r.armTimer(r.turn)
	l := r.listener
	r.mu.Unlock()

	if l != nil {
		l.OnStart()
	}
	return nil
}

// Stop implements domain.Recognizer
func (r *VoiceRecognizer) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return domain.ErrInvalidState
	}
	r.end()
	l := r.listener
	r.mu.Unlock()

	if l != nil {
		l.OnEnd()
	}
	return nil
}

// Listening reports whether a turn is open
func (r *VoiceRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Submit transcribes one recording into the open turn. It returns
// domain.ErrNotListening when no turn is open or the turn closed while the
// recording was being transcribed.
func (r *VoiceRecognizer) Submit(ctx context.Context, audio io.Reader) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return domain.ErrNotListening
	}
	turn := r.turn
	r.stopTimer()
	r.mu.Unlock()

	text, err := r.transcriber.Transcribe(ctx, r.locale, audio)

	r.mu.Lock()
	if !r.running || r.turn != turn {
		r.mu.Unlock()
		return domain.ErrNotListening
	}
	l := r.listener

	if err != nil {
		r.end()
		r.mu.Unlock()

		r.log.Warn().Err(err).Msg("Transcription failed")
		if l != nil {
			l.OnError(CodeNetwork)
			l.OnEnd()
		}
		return fmt.Errorf("transcribe: %w", err)
	}

	r.armTimer(turn)
	if text == "" {
		r.mu.Unlock()
		if l != nil {
			l.OnError(CodeNoSpeech)
		}
		return nil
	}

	r.seq++
	ev := domain.TranscriptEvent{Seq: r.seq, Final: []string{text}}
	r.mu.Unlock()

	r.log.Debug().Str("text", text).Uint64("seq", ev.Seq).Msg("Transcript received")
	if l != nil {
		l.OnResult(ev)
	}
	return nil
}

// end closes the turn. Callers hold mu.
func (r *VoiceRecognizer) end() {
	r.running = false
	r.stopTimer()
}

func (r *VoiceRecognizer) armTimer(turn uint64) {
	r.stopTimer()
	if r.idle <= 0 {
		return
	}
	r.timer = time.AfterFunc(r.idle, func() { r.expire(turn) })
}

func (r *VoiceRecognizer) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *VoiceRecognizer) expire(turn uint64) {
	r.mu.Lock()
	if !r.running || r.turn != turn {
		r.mu.Unlock()
		return
	}
	r.end()
	l := r.listener
	r.mu.Unlock()

	r.log.Debug().Msg("Voice turn timed out")
	if l != nil {
		l.OnEnd()
	}
}
