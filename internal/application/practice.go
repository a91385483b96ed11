package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/matching"
	"github.com/Serg19772026/English-Trainer/internal/observability"
	"github.com/Serg19772026/English-Trainer/internal/session"
	"github.com/rs/zerolog"
)

const snapshotTimeout = 5 * time.Second

// practiceSession is the live practice screen of one user
type practiceSession struct {
	id         string
	userID     string
	chatID     int64
	runner     *session.Runner
	recognizer domain.VoiceRecognizerPort
	metrics    *observability.SessionMetrics
	view       domain.PracticeView
	log        zerolog.Logger

	mu              sync.Mutex
	lang            domain.Language
	topic           domain.Topic
	sentence        domain.Sentence
	words           []string
	showTranslation bool
	messageID       int
	closed          bool
}

func (ps *practiceSession) card(snap domain.Snapshot) domain.PracticeCard {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return domain.PracticeCard{
		UserID:          ps.userID,
		ChatID:          ps.chatID,
		MessageID:       ps.messageID,
		Language:        ps.lang,
		Topic:           ps.topic,
		Sentence:        ps.sentence,
		Words:           ps.words,
		ShowTranslation: ps.showTranslation,
		Snapshot:        snap,
	}
}

func (ps *practiceSession) load(topic domain.Topic, sentence domain.Sentence, messageID int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.topic = topic
	ps.sentence = sentence
	ps.words = matching.Normalize(sentence.Text)
	ps.messageID = messageID
}

func (ps *practiceSession) setLanguage(lang domain.Language) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.lang = lang
}

func (ps *practiceSession) setTranslation(show bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.showTranslation = show
}

func (ps *practiceSession) setMessage(id int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.messageID = id
}

func (ps *practiceSession) wordCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.words)
}

func (ps *practiceSession) isClosed() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.closed
}

func (ps *practiceSession) close() {
	ps.mu.Lock()
	ps.closed = true
	ps.mu.Unlock()

	ps.runner.Close()
	ps.metrics.Close()
	ps.log.Info().Msg("Practice session closed")
}

// HandleSentenceSelection opens practice of a sentence of the selected topic.
// The returned card has no message yet; the caller reports it with
// SetCardMessage once the card is on screen.
func (s *BotService) HandleSentenceSelection(ctx context.Context, userID string, chatID int64, sentenceID string) (domain.PracticeCard, error) {
	topicID, err := s.fsm.GetData(ctx, userID, domain.SessionKeyTopic)
	if err != nil {
		return domain.PracticeCard{}, fmt.Errorf("get topic: %w", err)
	}

	topic, err := s.catalog.Topic(topicID)
	if err != nil {
		return domain.PracticeCard{}, fmt.Errorf("get topic: %w", err)
	}
	sentence, err := s.catalog.Sentence(topicID, sentenceID)
	if err != nil {
		return domain.PracticeCard{}, fmt.Errorf("get sentence: %w", err)
	}

	// Store selected sentence
	if err := s.fsm.SetData(ctx, userID, domain.SessionKeySentence, sentenceID); err != nil {
		return domain.PracticeCard{}, fmt.Errorf("set sentence: %w", err)
	}

	// Move to next state
	if err := s.fsm.SetState(ctx, userID, domain.StatePracticing); err != nil {
		return domain.PracticeCard{}, fmt.Errorf("set state: %w", err)
	}

	ps, err := s.openSession(ctx, userID, chatID)
	if err != nil {
		return domain.PracticeCard{}, err
	}
	ps.load(topic, sentence, 0)
	ps.runner.Select(sentence.Text)

	ps.log.Info().
		Str("topic", topic.ID).
		Str("sentence", sentence.ID).
		Msg("Sentence selected")

	return ps.card(ps.runner.Snapshot()), nil
}

// SetCardMessage records the chat message showing the practice card
func (s *BotService) SetCardMessage(ctx context.Context, userID string, messageID int) error {
	if err := s.fsm.SetData(ctx, userID, domain.SessionKeyCardMessage, strconv.Itoa(messageID)); err != nil {
		return fmt.Errorf("set card message: %w", err)
	}
	if ps := s.lookup(userID); ps != nil {
		ps.setMessage(messageID)
	}
	return nil
}

// Card returns the practice card of the user. Without a live session the card
// is rebuilt from the stored selection and the last saved snapshot.
func (s *BotService) Card(ctx context.Context, userID string, chatID int64) (domain.PracticeCard, error) {
	if ps := s.lookup(userID); ps != nil {
		return ps.card(ps.runner.Snapshot()), nil
	}

	state, err := s.fsm.GetState(ctx, userID)
	if err != nil || state != domain.StatePracticing {
		return domain.PracticeCard{}, domain.ErrNoSession
	}

	topic, sentence, err := s.selectedSentence(ctx, userID)
	if err != nil {
		return domain.PracticeCard{}, fmt.Errorf("%w: %w", domain.ErrNoSession, err)
	}

	snap, err := s.fsm.LoadSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load snapshot")
		}
		snap = session.New(s.settings.Timings).Snapshot()
	}

	return domain.PracticeCard{
		UserID:          userID,
		ChatID:          chatID,
		MessageID:       s.storedMessageID(ctx, userID),
		Language:        s.GetUserLanguage(ctx, userID),
		Topic:           topic,
		Sentence:        sentence,
		Words:           matching.Normalize(sentence.Text),
		ShowTranslation: s.ShowTranslation(ctx, userID),
		Snapshot:        settled(snap),
		Restored:        true,
	}, nil
}

// PracticeSentence plays the selected sentence and listens for it
func (s *BotService) PracticeSentence(ctx context.Context, userID string, chatID int64) error {
	ps, err := s.activeSession(ctx, userID, chatID)
	if err != nil {
		return err
	}
	ps.runner.PracticeSentence()
	return nil
}

// PracticeWord plays word idx of the selected sentence and drills it
func (s *BotService) PracticeWord(ctx context.Context, userID string, chatID int64, idx int) error {
	ps, err := s.activeSession(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= ps.wordCount() {
		return fmt.Errorf("word %d: %w", idx, domain.ErrNotFound)
	}
	ps.runner.PracticeWord(idx)
	return nil
}

// HandleVoice feeds a recording into the user's open listening turn
func (s *BotService) HandleVoice(ctx context.Context, userID string, audio io.Reader) error {
	ps := s.lookup(userID)
	if ps == nil {
		return domain.ErrNotListening
	}
	return ps.recognizer.Submit(ctx, audio)
}

// EndPractice closes the user's live session, if any
func (s *BotService) EndPractice(userID string) {
	s.mu.Lock()
	ps := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ps != nil {
		ps.close()
	}
}

// ActiveSessions returns the number of live practice sessions
func (s *BotService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every live session
func (s *BotService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*practiceSession)
	s.mu.Unlock()

	for _, ps := range sessions {
		ps.close()
	}
}

func (s *BotService) lookup(userID string) *practiceSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// activeSession returns the live session of the user, reopening it from the
// stored selection after a restart
func (s *BotService) activeSession(ctx context.Context, userID string, chatID int64) (*practiceSession, error) {
	if ps := s.lookup(userID); ps != nil {
		return ps, nil
	}

	state, err := s.fsm.GetState(ctx, userID)
	if err != nil || state != domain.StatePracticing {
		return nil, domain.ErrNoSession
	}

	topic, sentence, err := s.selectedSentence(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoSession, err)
	}

	ps, err := s.openSession(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	ps.load(topic, sentence, s.storedMessageID(ctx, userID))
	ps.runner.Select(sentence.Text)

	ps.log.Info().Str("sentence", sentence.ID).Msg("Practice session restored")
	return ps, nil
}

// openSession returns the live session of the user in chatID, creating it
// when missing
func (s *BotService) openSession(ctx context.Context, userID string, chatID int64) (*practiceSession, error) {
	s.mu.Lock()
	ps := s.sessions[userID]
	if ps != nil && ps.chatID == chatID {
		s.mu.Unlock()
		return ps, nil
	}
	view := s.view
	s.mu.Unlock()

	if ps != nil {
		s.EndPractice(userID)
	}
	if view == nil {
		return nil, errors.New("no practice view attached")
	}

	id := observability.NewSessionID()
	ps = &practiceSession{
		id:              id,
		userID:          userID,
		chatID:          chatID,
		view:            view,
		log:             observability.WithSession(chatID, id).With().Str("user_id", userID).Logger(),
		lang:            s.GetUserLanguage(ctx, userID),
		showTranslation: s.ShowTranslation(ctx, userID),
	}
	ps.recognizer = s.newRecognizer(ps.log)

	opts := []session.RunnerOption{
		session.WithLogger(ps.log),
		session.WithSnapshotHandler(func(snap domain.Snapshot) {
			s.onSnapshot(ps, snap)
		}),
	}
	opts = append(opts, s.runnerOpts...)
	ps.runner = session.NewRunner(ps.recognizer, view.Speaker(chatID), s.settings.Timings, opts...)
	ps.metrics = observability.NewSessionMetrics(ps.runner.Snapshot())

	s.mu.Lock()
	if existing := s.sessions[userID]; existing != nil {
		// lost a race with another update of the same user
		s.mu.Unlock()
		ps.close()
		return existing, nil
	}
	s.sessions[userID] = ps
	s.mu.Unlock()

	ps.log.Info().Msg("Practice session opened")
	return ps, nil
}

// onSnapshot persists and redraws a changed session state. It runs on the
// goroutine draining the session's event queue.
func (s *BotService) onSnapshot(ps *practiceSession, snap domain.Snapshot) {
	ps.metrics.Observe(snap)

	ps.log.Debug().
		Str("mode", string(snap.Mode)).
		Str("status", string(snap.Status)).
		Ints("matched", snap.Matched).
		Msg("Session state changed")

	if ps.isClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := s.fsm.SaveSnapshot(ctx, ps.userID, snap); err != nil {
		ps.log.Warn().Err(err).Msg("Failed to save snapshot")
	}
	ps.view.ShowCard(ctx, ps.card(snap))
}

func (s *BotService) storedMessageID(ctx context.Context, userID string) int {
	v, err := s.fsm.GetData(ctx, userID, domain.SessionKeyCardMessage)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return id
}

// settled drops the transient parts of a stored snapshot. Prompts, turns and
// feedback did not survive the process that recorded them.
func settled(snap domain.Snapshot) domain.Snapshot {
	out := domain.Snapshot{
		Mode:            domain.ModeIdle,
		Matched:         snap.Matched,
		LastMatched:     domain.NoIndex,
		Focused:         domain.NoIndex,
		IsolatedSuccess: domain.NoIndex,
		Completed:       snap.Completed,
		Error:           snap.Error,
	}
	if out.Completed {
		out.Mode = domain.ModeCompleted
	}
	out.Status = domain.StatusFor(false, false, false, out.Completed, false)
	return out
}
