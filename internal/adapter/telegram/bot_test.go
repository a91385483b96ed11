package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type apiCall struct {
	method string
	form   url.Values
	files  map[string][]byte
}

// fakeTelegram serves the Bot API methods the bot uses and records every call
type fakeTelegram struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	calls []apiCall
	fail  map[string]bool
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{t: t, fail: make(map[string]bool)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	call := apiCall{method: path.Base(r.URL.Path), files: make(map[string][]byte)}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			f.t.Errorf("parse multipart %s: %v", call.method, err)
		}
		for name, headers := range r.MultipartForm.File {
			file, err := headers[0].Open()
			if err != nil {
				f.t.Errorf("open %s: %v", name, err)
				continue
			}
			call.files[name], _ = io.ReadAll(file)
			file.Close()
		}
	} else if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse form %s: %v", call.method, err)
	}
	call.form = r.Form

	f.mu.Lock()
	f.calls = append(f.calls, call)
	failing := f.fail[call.method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case failing:
		io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	case call.method == "getMe":
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Trainer","username":"trainer_bot"}}`)
	case strings.HasPrefix(call.method, "send"):
		io.WriteString(w, `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeTelegram) failMethod(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = true
}

// sent returns the calls of methods starting with "send"
func (f *fakeTelegram) sent() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if strings.HasPrefix(c.method, "send") {
			out = append(out, c)
		}
	}
	return out
}

func newTestBot(t *testing.T, f *fakeTelegram, synth domain.SynthesizerPort) *Bot {
	t.Helper()
	api, err := tgbotapi.NewBotAPIWithClient("test-token", f.srv.URL+"/bot%s/%s", f.srv.Client())
	if err != nil {
		t.Fatalf("connect to fake Bot API: %v", err)
	}
	return newBot(api, nil, loadI18n(t), synth)
}

type fakeSynth struct {
	audio []byte
	err   error

	mu    sync.Mutex
	texts []string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.audio, s.err
}

func TestSpeak_VoicePrompt(t *testing.T) {
	f := newFakeTelegram(t)
	synth := &fakeSynth{audio: []byte("RIFF-nights")}
	b := newTestBot(t, f, synth)
	b.transcode = func(_ context.Context, in io.Reader, outArgs ...string) ([]byte, error) {
		if !slices.Contains(outArgs, "libopus") {
			t.Errorf("voice prompt encoded with %v, want opus", outArgs)
		}
		data, err := io.ReadAll(in)
		return append([]byte("OGG-"), data...), err
	}

	if err := b.Speaker(42).Speak(context.Background(), "nights"); err != nil {
		t.Fatalf("Speak() failed: %v", err)
	}

	if !slices.Equal(synth.texts, []string{"nights"}) {
		t.Errorf("synthesized %v, want [nights]", synth.texts)
	}
	sent := f.sent()
	if len(sent) != 1 || sent[0].method != "sendVoice" {
		t.Fatalf("sent %v, want one sendVoice", sent)
	}
	voice := sent[0]
	if got := string(voice.files["voice"]); got != "OGG-RIFF-nights" {
		t.Errorf("voice file = %q", got)
	}
	if got := voice.form.Get("caption"); got != "🔊 <b>nights</b>" {
		t.Errorf("caption = %q", got)
	}
	if voice.form.Get("parse_mode") != tgbotapi.ModeHTML || voice.form.Get("chat_id") != "42" {
		t.Errorf("voice form = %v", voice.form)
	}
}

func TestSpeak_Failures(t *testing.T) {
	tests := []struct {
		name      string
		synth     *fakeSynth
		encodeErr error
		failSend  bool
	}{
		{name: "synthesis", synth: &fakeSynth{err: errors.New("503")}},
		{name: "encoding", synth: &fakeSynth{audio: []byte("RIFF")}, encodeErr: errors.New("ffmpeg not found")},
		{name: "telegram", synth: &fakeSynth{audio: []byte("RIFF")}, failSend: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTelegram(t)
			if tt.failSend {
				f.failMethod("sendVoice")
			}
			b := newTestBot(t, f, tt.synth)
			b.transcode = func(context.Context, io.Reader, ...string) ([]byte, error) {
				return []byte("OGG"), tt.encodeErr
			}

			if err := b.Speaker(42).Speak(context.Background(), "book"); err == nil {
				t.Fatal("Speak() succeeded, want a playback error")
			}
			if !tt.failSend && len(f.sent()) != 0 {
				t.Errorf("sent %v after a failed prompt", f.sent())
			}
		})
	}
}

func TestSpeak_TextPrompt(t *testing.T) {
	f := newFakeTelegram(t)
	b := newTestBot(t, f, nil)

	if err := b.Speaker(42).Speak(context.Background(), "Fish & chips"); err != nil {
		t.Fatalf("Speak() failed: %v", err)
	}

	sent := f.sent()
	if len(sent) != 1 || sent[0].method != "sendMessage" {
		t.Fatalf("sent %v, want one sendMessage", sent)
	}
	if got := sent[0].form.Get("text"); got != "🔊 <b>Fish &amp; chips</b>" {
		t.Errorf("text = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Speaker(42).Speak(ctx, "late"); !errors.Is(err, context.Canceled) {
		t.Errorf("Speak(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestSendLanguageSelection(t *testing.T) {
	f := newFakeTelegram(t)
	b := newTestBot(t, f, nil)

	var logs bytes.Buffer
	b.log = zerolog.New(&logs)

	b.sendLanguageSelection(42, domain.LangEnglish)
	sent := f.sent()
	if len(sent) != 1 || !strings.Contains(sent[0].form.Get("reply_markup"), "lang:ru") {
		t.Fatalf("sent %v, want the language keyboard", sent)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected log output: %s", logs.String())
	}

	f.failMethod("sendMessage")
	b.sendLanguageSelection(42, domain.LangEnglish)
	if !strings.Contains(logs.String(), "Failed to send language selection") {
		t.Errorf("send failure not logged: %q", logs.String())
	}
}
