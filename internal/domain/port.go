package domain

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidState is returned by a Recognizer asked to start while running
	// or to stop while stopped.
	ErrInvalidState = errors.New("invalid recognizer state")

	// ErrNotFound is returned by stores and catalogs for unknown keys
	ErrNotFound = errors.New("not found")

	// ErrNotListening is returned when speech arrives while no turn is open
	ErrNotListening = errors.New("not listening")

	// ErrNoSession is returned for practice requests without a selected sentence
	ErrNoSession = errors.New("no practice session")
)

// Speaker plays a prompt aloud. Speak returns once playback has ended.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// RecognizerListener receives recognizer lifecycle callbacks
type RecognizerListener interface {
	OnStart()
	OnEnd()
	OnResult(event TranscriptEvent)
	OnError(code string)
}

// Recognizer is a continuous speech recognizer. Start and Stop are requests;
// their effect is observed through the listener callbacks.
type Recognizer interface {
	// Listen registers the single listener for lifecycle callbacks
	Listen(l RecognizerListener)

	// Start begins a recognition turn
	Start() error

	// Stop ends the current recognition turn
	Stop() error
}

// VoiceRecognizerPort is a Recognizer fed with whole recordings
type VoiceRecognizerPort interface {
	Recognizer

	// Submit transcribes a recording into the open turn
	Submit(ctx context.Context, audio io.Reader) error
}

// TranscriberPort turns recorded speech into text
type TranscriberPort interface {
	// Transcribe sends audio to the recognition backend and returns the transcript
	Transcribe(ctx context.Context, locale string, audio io.Reader) (string, error)
}

// SynthesizerPort turns prompt text into speech
type SynthesizerPort interface {
	// Synthesize returns the spoken text as WAV audio
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CatalogPort provides read-only access to practice topics
type CatalogPort interface {
	// Topics returns all topics in catalog order
	Topics() []Topic

	// Topic returns a topic by ID
	Topic(id string) (Topic, error)

	// Sentence returns a sentence of a topic by ID
	Sentence(topicID, sentenceID string) (Sentence, error)

	// VisibleSentences picks at most n random sentences of a topic
	VisibleSentences(topicID string, n int) ([]Sentence, error)
}

// FSMPort defines the interface for finite state machine storage
type FSMPort interface {
	// SetState sets the current state for a user
	SetState(ctx context.Context, userID string, state State) error

	// GetState gets the current state for a user
	GetState(ctx context.Context, userID string) (State, error)

	// SetData sets temporary data for a user's current session
	SetData(ctx context.Context, userID, key, value string) error

	// GetData gets temporary data for a user's current session
	GetData(ctx context.Context, userID, key string) (string, error)

	// DeleteData deletes temporary data for a user
	DeleteData(ctx context.Context, userID, key string) error

	// SaveSnapshot stores the live snapshot of the user's practice screen
	SaveSnapshot(ctx context.Context, userID string, snap Snapshot) error

	// LoadSnapshot returns the last stored snapshot
	LoadSnapshot(ctx context.Context, userID string) (Snapshot, error)
}

// I18nPort defines the interface for internationalization
type I18nPort interface {
	// Get retrieves a translated message
	Get(lang Language, key string, args ...interface{}) string

	// TopicTitle retrieves the localized title of a topic
	TopicTitle(lang Language, topic Topic) string

	// StatusLabel retrieves the label of a practice status
	StatusLabel(lang Language, status Status) string
}

// PracticeView is the chat surface practice sessions talk to
type PracticeView interface {
	// Speaker returns the prompt speaker of a chat
	Speaker(chatID int64) Speaker

	// ShowCard redraws the practice card after a state change
	ShowCard(ctx context.Context, card PracticeCard)
}

// State represents the FSM states
type State string

const (
	StateStart          State = "start"
	StateSelectTopic    State = "select_topic"
	StateSelectSentence State = "select_sentence"
	StatePracticing     State = "practicing"
)

// SessionData keys
const (
	SessionKeyTopic       = "topic"
	SessionKeySentence    = "sentence"
	SessionKeyVisible     = "visible" // prefix of the per-topic sentence picks
	SessionKeyLanguage    = "language"
	SessionKeyTranslation = "translation"
	SessionKeyCardMessage = "card_message"
)

// VisibleKey is the session data key holding the comma separated IDs of the
// sentences picked for a topic
func VisibleKey(topicID string) string {
	return SessionKeyVisible + ":" + topicID
}
