package domain

import "slices"

// NoIndex marks an absent word index in a Snapshot.
const NoIndex = -1

// Topic groups practice sentences under a common theme
type Topic struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Icon      string     `yaml:"icon"`
	Sentences []Sentence `yaml:"sentences"`
}

// Sentence represents a single practice sentence
type Sentence struct {
	ID          string   `yaml:"id"`
	Text        string   `yaml:"text"`
	Translation string   `yaml:"translation"`
	Tips        []string `yaml:"tips"`
}

// Mode is the single active mode of a practice session
type Mode string

const (
	ModeIdle                Mode = "idle"
	ModePlayingPrompt       Mode = "playing_prompt"
	ModeListeningSequential Mode = "listening_sequential"
	ModeListeningIsolated   Mode = "listening_isolated"
	ModeWrongFeedback       Mode = "wrong_feedback"
	ModeCompleted           Mode = "completed"
)

// Listening reports whether m is one of the two listening modes.
func (m Mode) Listening() bool {
	return m == ModeListeningSequential || m == ModeListeningIsolated
}

// TranscriptEvent is one batch of recognizer output. Final holds the fragments
// committed by this event, Interim the current unstable hypothesis. Fragments
// are raw recognizer text and may contain several words each.
type TranscriptEvent struct {
	Seq     uint64
	Final   []string
	Interim []string
}

// ErrorKind classifies user-visible session errors
type ErrorKind string

const (
	ErrorKindPlayback    ErrorKind = "playback"
	ErrorKindRecognition ErrorKind = "recognition"
)

// SessionError is the last user-visible failure of a session
type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Status is the short label shown next to the practice card
type Status string

const (
	StatusSpeaking Status = "speaking"
	StatusWrong    Status = "wrong"
	StatusRepeat   Status = "repeat"
	StatusListen   Status = "listen"
	StatusPerfect  Status = "perfect"
	StatusReady    Status = "ready"
)

// StatusFor picks the label for the given flags. Speaking beats wrong, wrong
// beats listening, listening beats completed.
func StatusFor(speaking, wrong, listening, completed, focused bool) Status {
	switch {
	case speaking:
		return StatusSpeaking
	case wrong:
		return StatusWrong
	case listening && focused:
		return StatusRepeat
	case listening:
		return StatusListen
	case completed:
		return StatusPerfect
	default:
		return StatusReady
	}
}

// Snapshot is the observable state of a practice session, recomputed after
// every accepted event.
type Snapshot struct {
	Mode            Mode          `json:"mode"`
	Matched         []int         `json:"matched"`
	LastMatched     int           `json:"last_matched"`
	Focused         int           `json:"focused"`
	CharMatchCount  int           `json:"char_match_count"`
	IsolatedSuccess int           `json:"isolated_success"`
	Wrong           bool          `json:"wrong"`
	Completed       bool          `json:"completed"`
	Speaking        bool          `json:"speaking"`
	Listening       bool          `json:"listening"`
	Error           *SessionError `json:"error,omitempty"`
	Status          Status        `json:"status"`
	NearMiss        float64       `json:"near_miss,omitempty"`
}

// IsMatched reports whether word idx has been matched in sentence mode
func (s Snapshot) IsMatched(idx int) bool {
	return slices.Contains(s.Matched, idx)
}

// Equal reports whether two snapshots describe the same observable state
func (s Snapshot) Equal(o Snapshot) bool {
	if !slices.Equal(s.Matched, o.Matched) {
		return false
	}
	if (s.Error == nil) != (o.Error == nil) {
		return false
	}
	if s.Error != nil && *s.Error != *o.Error {
		return false
	}
	return s.Mode == o.Mode &&
		s.LastMatched == o.LastMatched &&
		s.Focused == o.Focused &&
		s.CharMatchCount == o.CharMatchCount &&
		s.IsolatedSuccess == o.IsolatedSuccess &&
		s.Wrong == o.Wrong &&
		s.Completed == o.Completed &&
		s.Speaking == o.Speaking &&
		s.Listening == o.Listening &&
		s.Status == o.Status &&
		s.NearMiss == o.NearMiss
}

// PracticeCard is everything needed to draw the practice screen of a chat
type PracticeCard struct {
	UserID          string
	ChatID          int64
	MessageID       int
	Language        Language
	Topic           Topic
	Sentence        Sentence
	Words           []string
	ShowTranslation bool
	Snapshot        Snapshot

	// Restored is set on cards rebuilt from storage without a live session
	Restored bool
}

// Language represents supported interface languages
type Language string

const (
	LangEnglish Language = "en"
	LangRussian Language = "ru"
)
