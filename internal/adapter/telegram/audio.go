package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxVoiceBytes caps the size of a downloaded voice note
const maxVoiceBytes = 20 << 20

// fetchVoice opens the voice note stored on Telegram's file servers
func (b *Bot) fetchVoice(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	if file.FileSize > maxVoiceBytes {
		return nil, fmt.Errorf("voice note too large: %d bytes", file.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download voice: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ffmpeg output arguments of the two conversions
var (
	wavArgs   = []string{"-ar", "16000", "-ac", "1", "-f", "wav"}
	voiceArgs = []string{"-c:a", "libopus", "-b:a", "32k", "-ac", "1", "-f", "ogg"}
)

// transcodeFunc converts audio read from in into the format described by the
// ffmpeg output arguments
type transcodeFunc func(ctx context.Context, in io.Reader, outArgs ...string) ([]byte, error)

// ffmpeg pipes audio through the ffmpeg binary
func (b *Bot) ffmpeg(ctx context.Context, in io.Reader, outArgs ...string) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	args = append(args, outArgs...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = io.LimitReader(in, maxVoiceBytes)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		b.log.Error().Str("stderr", stderr.String()).Msg("FFmpeg failed")
		return nil, fmt.Errorf("ffmpeg conversion failed: %w", err)
	}
	return out.Bytes(), nil
}

// processVoiceMessage downloads a Telegram voice message and converts it to
// 16kHz mono WAV
func (b *Bot) processVoiceMessage(ctx context.Context, fileID string) (io.Reader, error) {
	body, err := b.fetchVoice(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	wav, err := b.transcode(ctx, body, wavArgs...)
	if err != nil {
		return nil, fmt.Errorf("convert audio: %w", err)
	}
	return bytes.NewReader(wav), nil
}

// encodeVoice converts synthesized audio into an OGG/Opus voice note
func (b *Bot) encodeVoice(ctx context.Context, audio []byte) ([]byte, error) {
	ogg, err := b.transcode(ctx, bytes.NewReader(audio), voiceArgs...)
	if err != nil {
		return nil, fmt.Errorf("encode voice: %w", err)
	}
	return ogg, nil
}
