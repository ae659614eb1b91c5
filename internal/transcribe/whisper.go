// Package transcribe turns audio recordings into text.
package transcribe

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber maps an audio file to its transcription text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

const defaultTimeout = 2 * time.Minute

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper returns a transcriber backed by the OpenAI audio API.
// Model defaults to whisper-1; language may be empty for auto-detect.
func NewWhisper(apiKey, model, language string) *Whisper {
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{
		client:   openai.NewClient(apiKey),
		model:    model,
		language: language,
		timeout:  defaultTimeout,
	}
}

// Transcribe uploads the file and returns the recognized text.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	if resp.Text == "" {
		return "", fmt.Errorf("transcribe %s: empty transcription", path)
	}
	return resp.Text, nil
}
