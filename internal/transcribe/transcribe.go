// Package transcribe converts recorded audio to text through a
// Whisper-compatible transcription endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voiceui/internal/domain"
)

// MaxAudioBytes is the largest upload accepted.
const MaxAudioBytes = 25 * 1024 * 1024

// Transcriber is the transcription collaborator. Errors wrap domain.ErrUpstream.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error)
}

type Func func(ctx context.Context, audio []byte, filename, language string) (string, error)

func (f Func) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	return f(ctx, audio, filename, language)
}

// Whisper calls POST {BaseURL}/audio/transcriptions.
type Whisper struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

func NewWhisper(baseURL, apiKey, model string, timeout time.Duration) *Whisper {
	return &Whisper{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	if len(audio) > MaxAudioBytes {
		return "", fmt.Errorf("audio exceeds %d bytes", MaxAudioBytes)
	}
	if filename == "" {
		filename = "recording.webm"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", w.Model)
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	url := strings.TrimRight(w.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.APIKey)
	}
	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %w: %s", domain.ErrUpstream, domain.ErrRateLimited, resp.Status)
		}
		return "", fmt.Errorf("%w: %s: %s", domain.ErrUpstream, resp.Status, strings.TrimSpace(string(b)))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode transcription: %v", domain.ErrUpstream, err)
	}
	return out.Text, nil
}

// IsAudio reports whether an upload looks like audio by content type or name.
func IsAudio(contentType, filename string) bool {
	return strings.HasPrefix(contentType, "audio/") || strings.HasSuffix(strings.ToLower(filename), ".webm")
}
