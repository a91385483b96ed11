package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/session"
	"github.com/rs/zerolog"
)

// RecognizerFactory creates the recognizer of a new practice session
type RecognizerFactory func(log zerolog.Logger) domain.VoiceRecognizerPort

// Settings holds the tunables of the bot service
type Settings struct {
	Timings          session.Timings
	VisibleSentences int
	DefaultLanguage  domain.Language
}

// BotService handles the business logic for the bot
type BotService struct {
	catalog       domain.CatalogPort
	fsm           domain.FSMPort
	newRecognizer RecognizerFactory
	settings      Settings
	log           zerolog.Logger

	runnerOpts []session.RunnerOption

	mu       sync.Mutex
	view     domain.PracticeView
	sessions map[string]*practiceSession
}

// Option configures a BotService
type Option func(*BotService)

// WithRunnerOptions passes extra options to every session runner
func WithRunnerOptions(opts ...session.RunnerOption) Option {
	return func(s *BotService) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// WithLogger sets the service logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *BotService) {
		s.log = l
	}
}

func NewBotService(
	catalog domain.CatalogPort,
	fsm domain.FSMPort,
	newRecognizer RecognizerFactory,
	settings Settings,
	opts ...Option,
) *BotService {
	if settings.DefaultLanguage == "" {
		settings.DefaultLanguage = domain.LangEnglish
	}
	s := &BotService{
		catalog:       catalog,
		fsm:           fsm,
		newRecognizer: newRecognizer,
		settings:      settings,
		log:           zerolog.Nop(),
		sessions:      make(map[string]*practiceSession),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AttachView sets the chat surface practice sessions speak and draw on. It
// must be called before the first practice session is opened.
func (s *BotService) AttachView(v domain.PracticeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// HandleStart handles the /start command. It opens a new learner session:
// practice ends and the sentence picks of every topic are dropped.
func (s *BotService) HandleStart(ctx context.Context, userID string, lang domain.Language) error {
	s.EndPractice(userID)

	keys := []string{domain.SessionKeySentence, domain.SessionKeyCardMessage}
	for _, t := range s.catalog.Topics() {
		keys = append(keys, domain.VisibleKey(t.ID))
	}
	if err := s.clearData(ctx, userID, keys...); err != nil {
		return err
	}

	// Set initial state
	if err := s.fsm.SetState(ctx, userID, domain.StateSelectTopic); err != nil {
		return fmt.Errorf("set state: %w", err)
	}

	// Store user language
	if err := s.fsm.SetData(ctx, userID, domain.SessionKeyLanguage, string(lang)); err != nil {
		return fmt.Errorf("set language: %w", err)
	}

	return nil
}

// GetCurrentState returns the current state for a user
func (s *BotService) GetCurrentState(ctx context.Context, userID string) (domain.State, error) {
	return s.fsm.GetState(ctx, userID)
}

// GetUserLanguage retrieves the user's preferred language
func (s *BotService) GetUserLanguage(ctx context.Context, userID string) domain.Language {
	langStr, err := s.fsm.GetData(ctx, userID, domain.SessionKeyLanguage)
	if err != nil || langStr == "" {
		return s.settings.DefaultLanguage
	}
	return domain.Language(langStr)
}

// SetUserLanguage stores the user's preferred language. A live practice
// session keeps running and draws its card in the new language.
func (s *BotService) SetUserLanguage(ctx context.Context, userID string, lang domain.Language) error {
	if err := s.fsm.SetData(ctx, userID, domain.SessionKeyLanguage, string(lang)); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if ps := s.lookup(userID); ps != nil {
		ps.setLanguage(lang)
	}
	return nil
}

// Topics returns all practice topics
func (s *BotService) Topics() []domain.Topic {
	return s.catalog.Topics()
}

// HandleTopicSelection moves the user to the sentence list of a topic. The
// sentences shown are picked on the first visit of the topic and kept until
// the next /start.
func (s *BotService) HandleTopicSelection(ctx context.Context, userID, topicID string) (domain.Topic, []domain.Sentence, error) {
	topic, err := s.catalog.Topic(topicID)
	if err != nil {
		return domain.Topic{}, nil, fmt.Errorf("get topic: %w", err)
	}

	visible, err := s.pickSentences(ctx, userID, topicID)
	if err != nil {
		return domain.Topic{}, nil, err
	}

	if err := s.fsm.SetData(ctx, userID, domain.SessionKeyTopic, topicID); err != nil {
		return domain.Topic{}, nil, fmt.Errorf("set topic: %w", err)
	}

	// Move to next state
	if err := s.fsm.SetState(ctx, userID, domain.StateSelectSentence); err != nil {
		return domain.Topic{}, nil, fmt.Errorf("set state: %w", err)
	}

	return topic, visible, nil
}

// VisibleSentences returns the sentence list of the user's current topic
func (s *BotService) VisibleSentences(ctx context.Context, userID string) (domain.Topic, []domain.Sentence, error) {
	topicID, err := s.fsm.GetData(ctx, userID, domain.SessionKeyTopic)
	if err != nil {
		return domain.Topic{}, nil, fmt.Errorf("get topic: %w", err)
	}
	return s.HandleTopicSelection(ctx, userID, topicID)
}

// pickSentences returns the stored pick of a topic, making and storing a new
// one when none is stored or the catalog changed since
func (s *BotService) pickSentences(ctx context.Context, userID, topicID string) ([]domain.Sentence, error) {
	key := domain.VisibleKey(topicID)

	stored, err := s.fsm.GetData(ctx, userID, key)
	switch {
	case err == nil && stored != "":
		if visible, ok := s.storedSentences(topicID, stored); ok {
			return visible, nil
		}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get visible sentences: %w", err)
	}

	visible, err := s.catalog.VisibleSentences(topicID, s.settings.VisibleSentences)
	if err != nil {
		return nil, fmt.Errorf("pick sentences: %w", err)
	}

	ids := make([]string, 0, len(visible))
	for _, v := range visible {
		ids = append(ids, v.ID)
	}
	if err := s.fsm.SetData(ctx, userID, key, strings.Join(ids, ",")); err != nil {
		return nil, fmt.Errorf("set visible sentences: %w", err)
	}
	return visible, nil
}

func (s *BotService) storedSentences(topicID, stored string) ([]domain.Sentence, bool) {
	ids := strings.Split(stored, ",")
	visible := make([]domain.Sentence, 0, len(ids))
	for _, id := range ids {
		sentence, err := s.catalog.Sentence(topicID, id)
		if err != nil {
			return nil, false
		}
		visible = append(visible, sentence)
	}
	return visible, true
}

// BackToTopics ends any practice and returns the user to topic selection
func (s *BotService) BackToTopics(ctx context.Context, userID string) error {
	s.EndPractice(userID)
	if err := s.clearData(ctx, userID, domain.SessionKeySentence, domain.SessionKeyCardMessage); err != nil {
		return err
	}
	if err := s.fsm.SetState(ctx, userID, domain.StateSelectTopic); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// BackToSentences ends any practice and returns the user to the sentence list
func (s *BotService) BackToSentences(ctx context.Context, userID string) (domain.Topic, []domain.Sentence, error) {
	s.EndPractice(userID)
	return s.VisibleSentences(ctx, userID)
}

// ShowTranslation reports whether translations are shown to the user
func (s *BotService) ShowTranslation(ctx context.Context, userID string) bool {
	v, err := s.fsm.GetData(ctx, userID, domain.SessionKeyTranslation)
	if err != nil {
		return true // default
	}
	return v != "off"
}

// ToggleTranslation flips translation visibility and returns the new value
func (s *BotService) ToggleTranslation(ctx context.Context, userID string) (bool, error) {
	show := !s.ShowTranslation(ctx, userID)
	value := "off"
	if show {
		value = "on"
	}
	if err := s.fsm.SetData(ctx, userID, domain.SessionKeyTranslation, value); err != nil {
		return false, fmt.Errorf("set translation: %w", err)
	}
	if ps := s.lookup(userID); ps != nil {
		ps.setTranslation(show)
	}
	return show, nil
}

// selectedSentence returns the topic and sentence stored for the user
func (s *BotService) selectedSentence(ctx context.Context, userID string) (domain.Topic, domain.Sentence, error) {
	topicID, err := s.fsm.GetData(ctx, userID, domain.SessionKeyTopic)
	if err != nil {
		return domain.Topic{}, domain.Sentence{}, fmt.Errorf("get topic: %w", err)
	}
	sentenceID, err := s.fsm.GetData(ctx, userID, domain.SessionKeySentence)
	if err != nil {
		return domain.Topic{}, domain.Sentence{}, fmt.Errorf("get sentence: %w", err)
	}

	topic, err := s.catalog.Topic(topicID)
	if err != nil {
		return domain.Topic{}, domain.Sentence{}, err
	}
	sentence, err := s.catalog.Sentence(topicID, sentenceID)
	if err != nil {
		return domain.Topic{}, domain.Sentence{}, err
	}
	return topic, sentence, nil
}

func (s *BotService) clearData(ctx context.Context, userID string, keys ...string) error {
	for _, key := range keys {
		if err := s.fsm.DeleteData(ctx, userID, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
