package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/huddle/internal/types"
	"go.aimuz.me/huddle/pcm"
)

const transcriptionService = "transcription"

// WhisperAPI implements the Provider interface using the OpenAI-compatible
// audio transcription endpoint (OpenAI, Groq, local servers).
type WhisperAPI struct {
	client   openai.Client
	model    string
	language string
	prompt   string
	ready    bool
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey   string
	BaseURL  string        // Optional, defaults to OpenAI's API
	Model    string        // Optional, defaults to "whisper-1"
	Language string        // Optional; empty or "auto" lets the service detect
	Prompt   string        // Optional style/domain hint
	Timeout  time.Duration // Optional, defaults to 60s
}

// NewWhisperAPI creates a new WhisperAPI provider.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	language := cfg.Language
	if language == "auto" {
		language = ""
	}

	return &WhisperAPI{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: language,
		prompt:   cfg.Prompt,
		ready:    cfg.APIKey != "",
	}
}

func (w *WhisperAPI) Name() string        { return "whisper-api" }
func (w *WhisperAPI) DisplayName() string { return "Whisper API (" + w.model + ")" }
func (w *WhisperAPI) IsLocal() bool       { return false }
func (w *WhisperAPI) IsReady() bool       { return w.ready }

// Transcribe uploads audio as a WAV file and returns the recognised text.
func (w *WhisperAPI) Transcribe(ctx context.Context, audio []byte, f pcm.Format) (string, error) {
	if !w.ready {
		return "", fmt.Errorf("whisper api: %w: api key required", ErrNotReady)
	}

	wavData, err := pcm.EncodeWAV(audio, f)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(wavData), "audio.wav", "audio/wav"),
		Model:          openai.AudioModel(w.model),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}
	if w.prompt != "" {
		params.Prompt = openai.String(w.prompt)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &types.TransportError{Service: transcriptionService, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &types.TransportError{Service: transcriptionService, Err: err}
	}

	return strings.TrimSpace(resp.Text), nil
}

func (w *WhisperAPI) Close() error {
	return nil
}
