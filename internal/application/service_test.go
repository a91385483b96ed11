package application_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/adapter/catalog"
	"github.com/Serg19772026/English-Trainer/internal/application"
	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/session"
	"github.com/rs/zerolog"
)

const bookRoom = "I would like to book a room for two nights."

type memFSM struct {
	mu     sync.Mutex
	states map[string]domain.State
	data   map[string]string
	snaps  map[string]domain.Snapshot
}

func newMemFSM() *memFSM {
	return &memFSM{
		states: make(map[string]domain.State),
		data:   make(map[string]string),
		snaps:  make(map[string]domain.Snapshot),
	}
}

func (m *memFSM) SetState(_ context.Context, userID string, state domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = state
	return nil
}

func (m *memFSM) GetState(_ context.Context, userID string) (domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[userID]; ok {
		return s, nil
	}
	return domain.StateStart, nil
}

func (m *memFSM) SetData(_ context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID+":"+key] = value
	return nil
}

func (m *memFSM) GetData(_ context.Context, userID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[userID+":"+key]
	if !ok {
		return "", fmt.Errorf("data %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (m *memFSM) DeleteData(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID+":"+key)
	return nil
}

func (m *memFSM) SaveSnapshot(_ context.Context, userID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[userID] = snap
	return nil
}

func (m *memFSM) LoadSnapshot(_ context.Context, userID string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[userID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s, nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSpeaker) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return ""
	}
	return s.spoken[len(s.spoken)-1]
}

type fakeView struct {
	speaker *fakeSpeaker

	mu    sync.Mutex
	cards []domain.PracticeCard
}

func (v *fakeView) Speaker(int64) domain.Speaker { return v.speaker }

func (v *fakeView) ShowCard(_ context.Context, card domain.PracticeCard) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = append(v.cards, card)
}

func (v *fakeView) last(t *testing.T) domain.PracticeCard {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.cards) == 0 {
		t.Fatal("no card shown")
	}
	return v.cards[len(v.cards)-1]
}

// fakeRecognizer reports lifecycle callbacks synchronously and uses the
// submitted audio as its transcript.
type fakeRecognizer struct {
	mu       sync.Mutex
	listener domain.RecognizerListener
	running  bool
	seq      uint64
}

func (r *fakeRecognizer) Listen(l domain.RecognizerListener) { r.listener = l }

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return domain.ErrInvalidState
	}
	r.running = true
	r.seq = 0
	r.mu.Unlock()
	r.listener.OnStart()
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return domain.ErrInvalidState
	}
	r.running = false
	r.mu.Unlock()
	r.listener.OnEnd()
	return nil
}

func (r *fakeRecognizer) Submit(_ context.Context, audio io.Reader) error {
	text, err := io.ReadAll(audio)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return domain.ErrNotListening
	}
	r.seq++
	seq := r.seq
	r.mu.Unlock()
	r.listener.OnResult(domain.TranscriptEvent{Seq: seq, Final: []string{string(text)}})
	return nil
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due, keep []*manualTimer
		for _, t := range c.timers {
			switch {
			case t.stopped:
			case t.at <= c.now:
				due = append(due, t)
			default:
				keep = append(keep, t)
			}
		}
		c.timers = keep
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		for _, t := range due {
			if !t.stopped {
				t.stopped = true
				t.f()
			}
		}
	}
}

type harness struct {
	svc   *application.BotService
	fsm   *memFSM
	view  *fakeView
	clock *manualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.New([]domain.Topic{{
		ID:    "travel",
		Title: "Travel & Tourism",
		Sentences: []domain.Sentence{
			{ID: "t1", Text: "Where is the nearest train station?"},
			{ID: "t2", Text: bookRoom, Translation: "Я хотел бы забронировать номер на две ночи."},
			{ID: "t3", Text: "How much does a ticket cost?"},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		fsm:   newMemFSM(),
		view:  &fakeView{speaker: &fakeSpeaker{}},
		clock: &manualClock{},
	}
	h.svc = application.NewBotService(
		cat,
		h.fsm,
		func(zerolog.Logger) domain.VoiceRecognizerPort { return &fakeRecognizer{} },
		application.Settings{
			Timings:          session.DefaultTimings(),
			VisibleSentences: 2,
		},
		application.WithRunnerOptions(
			session.WithClock(h.clock),
			session.WithExecutor(func(f func()) { f() }),
		),
	)
	h.svc.AttachView(h.view)
	t.Cleanup(h.svc.Close)
	return h
}

func TestTopicAndSentenceSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.svc.HandleStart(ctx, "u1", domain.LangRussian); err != nil {
		t.Fatal(err)
	}
	if lang := h.svc.GetUserLanguage(ctx, "u1"); lang != domain.LangRussian {
		t.Errorf("language = %s, want ru", lang)
	}
	if lang := h.svc.GetUserLanguage(ctx, "unknown"); lang != domain.LangEnglish {
		t.Errorf("default language = %s, want en", lang)
	}

	topic, visible, err := h.svc.HandleTopicSelection(ctx, "u1", "travel")
	if err != nil {
		t.Fatal(err)
	}
	if topic.ID != "travel" || len(visible) != 2 {
		t.Fatalf("topic %s with %d sentences, want travel with 2", topic.ID, len(visible))
	}
	if state, _ := h.svc.GetCurrentState(ctx, "u1"); state != domain.StateSelectSentence {
		t.Errorf("state = %s, want %s", state, domain.StateSelectSentence)
	}

	// the pick is kept for the whole learner session
	_, again, err := h.svc.VisibleSentences(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	_, reselected, err := h.svc.HandleTopicSelection(ctx, "u1", "travel")
	if err != nil {
		t.Fatal(err)
	}
	for i := range visible {
		if again[i].ID != visible[i].ID || reselected[i].ID != visible[i].ID {
			t.Fatalf("visible sentences changed: %v then %v then %v", visible, again, reselected)
		}
	}

	// /start begins a new learner session with fresh picks
	if err := h.svc.HandleStart(ctx, "u1", domain.LangRussian); err != nil {
		t.Fatal(err)
	}
	if _, err := h.fsm.GetData(ctx, "u1", domain.VisibleKey("travel")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("pick after /start error = %v, want ErrNotFound", err)
	}

	if _, _, err := h.svc.HandleTopicSelection(ctx, "u1", "sports"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown topic error = %v, want ErrNotFound", err)
	}
}

func TestPracticeFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")

	card, err := h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2")
	if err != nil {
		t.Fatal(err)
	}
	if len(card.Words) != 10 || card.Words[9] != "nights" {
		t.Fatalf("words = %v", card.Words)
	}
	if !card.ShowTranslation {
		t.Error("translation hidden by default")
	}
	if state, _ := h.svc.GetCurrentState(ctx, "u1"); state != domain.StatePracticing {
		t.Errorf("state = %s, want %s", state, domain.StatePracticing)
	}
	if err := h.svc.SetCardMessage(ctx, "u1", 7); err != nil {
		t.Fatal(err)
	}

	if err := h.svc.PracticeSentence(ctx, "u1", 42); err != nil {
		t.Fatal(err)
	}
	if got := h.view.speaker.last(); got != bookRoom {
		t.Errorf("spoken %q, want the sentence", got)
	}

	h.clock.Advance(300 * time.Millisecond)
	shown := h.view.last(t)
	if shown.MessageID != 7 || shown.Snapshot.Mode != domain.ModeListeningSequential {
		t.Fatalf("card message %d in mode %s, want 7 listening", shown.MessageID, shown.Snapshot.Mode)
	}

	if err := h.svc.HandleVoice(ctx, "u1", strings.NewReader("I would like to book a room")); err != nil {
		t.Fatal(err)
	}
	if got := h.view.last(t).Snapshot.Matched; len(got) != 7 {
		t.Errorf("matched %v, want 7 words", got)
	}

	if err := h.svc.HandleVoice(ctx, "u1", strings.NewReader("for two nights")); err != nil {
		t.Fatal(err)
	}
	if !h.view.last(t).Snapshot.Completed {
		t.Fatal("sentence not completed")
	}
	saved, err := h.fsm.LoadSnapshot(ctx, "u1")
	if err != nil || !saved.Completed {
		t.Errorf("saved snapshot %+v, %v", saved, err)
	}

	// the turn closed on completion
	if err := h.svc.HandleVoice(ctx, "u1", strings.NewReader("again")); !errors.Is(err, domain.ErrNotListening) {
		t.Errorf("voice after completion error = %v, want ErrNotListening", err)
	}
}

func TestPracticeWordDrill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")
	if _, err := h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2"); err != nil {
		t.Fatal(err)
	}

	if err := h.svc.PracticeWord(ctx, "u1", 42, 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("word out of range error = %v, want ErrNotFound", err)
	}

	if err := h.svc.PracticeWord(ctx, "u1", 42, 4); err != nil {
		t.Fatal(err)
	}
	if got := h.view.speaker.last(); got != "book" {
		t.Errorf("spoken %q, want book", got)
	}
	h.clock.Advance(300 * time.Millisecond)

	if err := h.svc.HandleVoice(ctx, "u1", strings.NewReader("look")); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(6 * time.Second)
	if snap := h.view.last(t).Snapshot; !snap.Wrong {
		t.Fatalf("snapshot %+v, want wrong feedback", snap)
	}

	h.svc.PracticeWord(ctx, "u1", 42, 4)
	h.clock.Advance(300 * time.Millisecond)
	h.svc.HandleVoice(ctx, "u1", strings.NewReader("book"))
	if snap := h.view.last(t).Snapshot; snap.IsolatedSuccess != 4 {
		t.Errorf("isolated success = %d, want 4", snap.IsolatedSuccess)
	}
}

func TestCardAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")
	h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2")
	h.svc.SetCardMessage(ctx, "u1", 7)
	h.svc.PracticeSentence(ctx, "u1", 42)
	h.clock.Advance(300 * time.Millisecond)
	h.svc.HandleVoice(ctx, "u1", strings.NewReader(bookRoom))

	h.svc.EndPractice("u1")
	if n := h.svc.ActiveSessions(); n != 0 {
		t.Fatalf("%d sessions after EndPractice", n)
	}

	card, err := h.svc.Card(ctx, "u1", 42)
	if err != nil {
		t.Fatal(err)
	}
	if !card.Restored {
		t.Error("card not marked as restored")
	}
	if card.MessageID != 7 || card.Sentence.ID != "t2" {
		t.Errorf("restored card message %d sentence %s", card.MessageID, card.Sentence.ID)
	}
	if !card.Snapshot.Completed || card.Snapshot.Listening || card.Snapshot.Status != domain.StatusPerfect {
		t.Errorf("restored snapshot %+v", card.Snapshot)
	}

	// a practice request reopens the session
	if err := h.svc.PracticeWord(ctx, "u1", 42, 9); err != nil {
		t.Fatal(err)
	}
	if n := h.svc.ActiveSessions(); n != 1 {
		t.Errorf("%d sessions, want 1", n)
	}
	if got := h.view.speaker.last(); got != "nights" {
		t.Errorf("spoken %q, want nights", got)
	}
}

func TestNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)

	if err := h.svc.PracticeSentence(ctx, "u1", 42); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("PracticeSentence() error = %v, want ErrNoSession", err)
	}
	if _, err := h.svc.Card(ctx, "u1", 42); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("Card() error = %v, want ErrNoSession", err)
	}
	if err := h.svc.HandleVoice(ctx, "u1", strings.NewReader("hi")); !errors.Is(err, domain.ErrNotListening) {
		t.Errorf("HandleVoice() error = %v, want ErrNotListening", err)
	}
}

func TestToggleTranslation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")
	h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2")

	show, err := h.svc.ToggleTranslation(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if show {
		t.Error("first toggle kept the translation visible")
	}
	card, _ := h.svc.Card(ctx, "u1", 42)
	if card.ShowTranslation {
		t.Error("live card still shows the translation")
	}

	if show, _ := h.svc.ToggleTranslation(ctx, "u1"); !show {
		t.Error("second toggle did not restore the translation")
	}
}

func TestBackToTopicsEndsPractice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")
	h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2")

	if err := h.svc.BackToTopics(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if n := h.svc.ActiveSessions(); n != 0 {
		t.Errorf("%d sessions after leaving practice", n)
	}
	if state, _ := h.svc.GetCurrentState(ctx, "u1"); state != domain.StateSelectTopic {
		t.Errorf("state = %s, want %s", state, domain.StateSelectTopic)
	}
	for _, key := range []string{domain.SessionKeySentence, domain.SessionKeyCardMessage} {
		if _, err := h.fsm.GetData(ctx, "u1", key); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%s after leaving practice error = %v, want ErrNotFound", key, err)
		}
	}
	if _, err := h.fsm.GetData(ctx, "u1", domain.VisibleKey("travel")); err != nil {
		t.Errorf("topic pick dropped on leaving practice: %v", err)
	}
}

func TestSetUserLanguageKeepsPractice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleStart(ctx, "u1", domain.LangEnglish)
	h.svc.HandleTopicSelection(ctx, "u1", "travel")
	h.svc.HandleSentenceSelection(ctx, "u1", 42, "t2")
	h.svc.SetCardMessage(ctx, "u1", 7)

	if err := h.svc.SetUserLanguage(ctx, "u1", domain.LangRussian); err != nil {
		t.Fatal(err)
	}
	if n := h.svc.ActiveSessions(); n != 1 {
		t.Fatalf("%d sessions after changing language, want 1", n)
	}
	if state, _ := h.svc.GetCurrentState(ctx, "u1"); state != domain.StatePracticing {
		t.Errorf("state = %s, want %s", state, domain.StatePracticing)
	}

	card, err := h.svc.Card(ctx, "u1", 42)
	if err != nil {
		t.Fatal(err)
	}
	if card.Language != domain.LangRussian || card.Restored {
		t.Errorf("card language %s restored %v, want live ru card", card.Language, card.Restored)
	}

	h.svc.PracticeSentence(ctx, "u1", 42)
	if got := h.view.last(t).Language; got != domain.LangRussian {
		t.Errorf("redrawn card language = %s, want ru", got)
	}
}
