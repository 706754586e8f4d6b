// Package app wires configuration, providers, the assistant and the control
// API into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.aimuz.me/huddle/audiocapture"
	"go.aimuz.me/huddle/config"
	"go.aimuz.me/huddle/internal/metrics"
	"go.aimuz.me/huddle/internal/server"
	"go.aimuz.me/huddle/meeting"
	"go.aimuz.me/huddle/speech"
	"go.aimuz.me/huddle/stt"
)

// Options configures a Service beyond the config file.
type Options struct {
	Version string
	Addr    string    // overrides the configured server address
	Console io.Writer // receives printed events; nil disables

	// OpenSource replaces the loopback capture, mainly for tests.
	OpenSource func() (meeting.AudioSource, error)
}

// Service owns every long-lived component.
type Service struct {
	cfg     *config.Config
	opts    Options
	metrics *metrics.Metrics

	registry  *stt.Registry
	speaker   *speech.Async
	assistant *meeting.Assistant
	server    *server.Server
}

// New builds all components. On failure everything built so far is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Service, err error) {
	s := &Service{cfg: cfg, opts: opts, metrics: metrics.New()}
	defer func() {
		if err != nil {
			s.Shutdown()
		}
	}()

	chat, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}

	reg, provider, err := setupSTT(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.registry = reg

	s.speaker = newSpeaker(cfg.Speech)

	open := opts.OpenSource
	if open == nil {
		open = sourceOpener(cfg.Assistant)
	}

	deps := meeting.Deps{
		OpenSource:  open,
		Transcriber: provider,
		Chat:        chat,
		Metrics:     s.metrics,
	}
	if s.speaker != nil {
		deps.Speaker = s.speaker
	}

	s.assistant, err = meeting.New(assistantConfig(cfg), deps)
	if err != nil {
		return nil, fmt.Errorf("init assistant: %w", err)
	}

	observers := []meeting.Observer{logObserver}
	if opts.Console != nil {
		observers = append(observers, consoleObserver(opts.Console))
	}
	if cfg.Server.Enabled {
		s.server = server.New(s.assistant, server.Options{
			Version:   opts.Version,
			Devices:   audiocapture.Devices,
			Metrics:   s.metrics,
			Providers: s.registry.List,
		})
		observers = append(observers, s.server.Hub().Broadcast)
	}
	s.assistant.SetObserver(fanout(observers...))

	return s, nil
}

func assistantConfig(cfg *config.Config) meeting.Config {
	a := cfg.Assistant
	mc := meeting.DefaultConfig()
	mc.TranscriptionInterval = a.Interval()
	mc.MinAudioLength = a.MinAudioLength()
	mc.MaxTranscriptLength = a.MaxTranscriptLength
	mc.SilenceThreshold = a.SilenceThreshold
	mc.MinSpeech = a.MinSpeech()
	mc.AutoSummary = a.AutoSummary
	mc.AutoSummaryInterval = a.AutoSummaryInterval()
	mc.SpeechEnabled = cfg.Speech.Enabled
	if cfg.Chat.SystemPrompt != "" {
		mc.SystemPrompt = cfg.Chat.SystemPrompt
	}
	return mc
}

// Assistant returns the meeting assistant.
func (s *Service) Assistant() *meeting.Assistant { return s.assistant }

// Run optionally starts listening, serves the control API and blocks until
// ctx is cancelled. It does not shut the service down.
func (s *Service) Run(ctx context.Context, listen bool) error {
	if listen {
		if err := s.assistant.StartListening(); err != nil {
			return err
		}
	}

	if s.server == nil {
		<-ctx.Done()
		return nil
	}
	addr := s.cfg.Server.Addr
	if s.opts.Addr != "" {
		addr = s.opts.Addr
	}
	return s.server.Run(ctx, addr)
}

// Shutdown stops listening and releases every component.
func (s *Service) Shutdown() {
	var errs []error
	if s.server != nil {
		s.server.Hub().Close()
	}
	if s.assistant != nil {
		if err := s.assistant.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close assistant: %w", err))
		}
	}
	if s.speaker != nil {
		if err := s.speaker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close speech: %w", err))
		}
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transcription: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("shutdown", "error", err)
	}
}
