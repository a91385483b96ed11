package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/observability"
)

// maxAudioBytes caps the size of one synthesized prompt
const maxAudioBytes = 10 << 20

// Client talks to the text-to-speech HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	voice      string
	rate       float64
	httpClient *http.Client
}

// Options configures a Client
type Options struct {
	BaseURL string
	APIKey  string
	Voice   string  // voice or locale name understood by the API, e.g. "en-US"
	Rate    float64 // speaking rate, 1 is normal speed
	Timeout time.Duration
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Voice == "" {
		opts.Voice = "en-US"
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		voice:   opts.Voice,
		rate:    opts.Rate,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

type speechRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Rate   float64 `json:"rate"`
	Format string  `json:"format"`
}

// Synthesize returns the spoken text as WAV audio
func (c *Client) Synthesize(ctx context.Context, text string) (audio []byte, err error) {
	start := time.Now()
	defer func() { observability.RecordSynthesis(start, err) }()

	body, err := json.Marshal(speechRequest{
		Text:   text,
		Voice:  c.voice,
		Rate:   c.rate,
		Format: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(msg))
	}

	audio, err = io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio for %q", text)
	}
	return audio, nil
}

// Ping checks that the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
