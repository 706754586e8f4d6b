package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.aimuz.me/huddle/config"
	"go.aimuz.me/huddle/llm"
	"go.aimuz.me/huddle/speech"
	"go.aimuz.me/huddle/stt"
)

const chatTimeout = 90 * time.Second

// newCompleter builds the chat boundary from the chat profile.
func newCompleter(cfg *config.Config) (llm.Completer, error) {
	cred := cfg.GetCredential(cfg.Chat.CredentialID)
	if cred == nil {
		return nil, fmt.Errorf("chat credential %q not found", cfg.Chat.CredentialID)
	}
	key := config.APIKey(cred)
	if key == "" {
		slog.Warn("chat credential has no api key", "credential", cred.ID, "env", cred.APIKeyEnv)
	}

	c := llm.NewCompleter(cred.Type, key, cred.BaseURL, cfg.Chat.Model, llm.Options{
		MaxTokens:   cfg.Chat.MaxTokens,
		Temperature: cfg.Chat.Temperature,
		Timeout:     chatTimeout,
	})
	slog.Info("chat provider configured", "type", cred.Type, "model", cfg.Chat.Model)
	return c, nil
}

// setupSTT registers every usable transcription provider and returns the
// configured one. A local provider that is missing its model is set up
// first.
func setupSTT(ctx context.Context, cfg *config.Config) (*stt.Registry, stt.Provider, error) {
	reg := stt.NewRegistry()
	p := cfg.Transcription

	if cred := cfg.GetCredential(p.CredentialID); cred != nil {
		api := stt.NewWhisperAPI(stt.WhisperAPIConfig{
			APIKey:   config.APIKey(cred),
			BaseURL:  cred.BaseURL,
			Model:    p.Model,
			Language: p.Language,
			Prompt:   p.Prompt,
		})
		reg.Register(api)
	}

	if p.Provider == config.ProviderWhisperLocal {
		local, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{
			ModelSize: p.ModelSize,
			Language:  p.Language,
			Prompt:    p.Prompt,
		})
		if err != nil {
			_ = reg.Close()
			return nil, nil, fmt.Errorf("init local whisper: %w", err)
		}
		reg.Register(local)
	}

	provider := reg.Get(p.Provider)
	if provider == nil {
		_ = reg.Close()
		return nil, nil, fmt.Errorf("transcription provider %q unavailable", p.Provider)
	}

	if local, ok := provider.(*stt.WhisperLocal); ok && !local.IsReady() {
		if !local.HasBinary() {
			_ = reg.Close()
			return nil, nil, fmt.Errorf("%w: whisper-cli not found in PATH", stt.ErrNotReady)
		}
		slog.Info("downloading whisper model", "size", p.ModelSize)
		last := -10
		err := local.Setup(ctx, func(percent int) {
			if percent >= last+10 || (percent == 100 && last != 100) {
				last = percent
				slog.Info("whisper model download", "percent", percent)
			}
		})
		if err != nil {
			_ = reg.Close()
			return nil, nil, fmt.Errorf("setup local whisper: %w", err)
		}
	}

	if !provider.IsReady() {
		slog.Warn("transcription provider not ready, requests will fail", "provider", provider.Name())
	}
	slog.Info("transcription provider configured", "provider", provider.DisplayName())
	return reg, provider, nil
}

// newSpeaker returns nil when no text-to-speech engine is installed.
func newSpeaker(cfg config.SpeechConfig) *speech.Async {
	engine, err := speech.NewCommand(cfg.Command, cfg.Rate, cfg.Volume)
	if err != nil {
		if errors.Is(err, speech.ErrNoEngine) {
			slog.Warn("speech output unavailable", "error", err)
			return nil
		}
		slog.Error("init speech output", "error", err)
		return nil
	}
	return speech.NewAsync(engine)
}
