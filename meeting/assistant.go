// Package meeting turns a live audio feed into a rolling transcript and
// answers questions about it with a chat model.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/huddle/audiocapture"
	"go.aimuz.me/huddle/internal/metrics"
	"go.aimuz.me/huddle/llm"
	"go.aimuz.me/huddle/pcm"
	"go.aimuz.me/huddle/speech"
)

// ErrClosed is returned by operations on a closed Assistant.
var ErrClosed = errors.New("meeting: assistant closed")

// ErrEmptyQuestion is returned by AskQuestion for blank input.
var ErrEmptyQuestion = errors.New("meeting: empty question")

var errEmptyResponse = errors.New("empty response")

// AudioSource produces native PCM chunks. *audiocapture.Capture is the
// production implementation.
type AudioSource interface {
	Format() pcm.Format
	Start(h audiocapture.Handler, onError audiocapture.ErrorHandler) error
	Stop() error
	Close() error
}

// Transcriber converts 16 kHz mono 16-bit PCM into text. Every
// stt.Provider satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, f pcm.Format) (string, error)
}

// Config holds the assistant settings consumed by New.
type Config struct {
	TranscriptionInterval time.Duration
	MinAudioLength        time.Duration // shorter drains are deferred to the next cycle
	MaxTranscriptLength   int
	SilenceThreshold      float64       // window RMS counted as speech; zero disables the gate
	MinSpeech             time.Duration // voiced time a drain needs to pass the gate
	QuestionPrompt        string
	SystemPrompt          string
	SpeechEnabled         bool
	AutoSummary           bool
	AutoSummaryInterval   time.Duration
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() Config {
	return Config{
		TranscriptionInterval: 5 * time.Second,
		MinAudioLength:        2 * time.Second,
		MaxTranscriptLength:   10000,
		MinSpeech:             200 * time.Millisecond,
		QuestionPrompt:        DefaultQuestionPrompt,
		SystemPrompt:          DefaultSystemPrompt,
		AutoSummaryInterval:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TranscriptionInterval <= 0 {
		c.TranscriptionInterval = d.TranscriptionInterval
	}
	if c.MinAudioLength < 0 {
		c.MinAudioLength = 0
	}
	if c.MinSpeech < 0 {
		c.MinSpeech = 0
	}
	if c.MaxTranscriptLength <= 0 {
		c.MaxTranscriptLength = d.MaxTranscriptLength
	}
	if c.QuestionPrompt == "" {
		c.QuestionPrompt = d.QuestionPrompt
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.AutoSummaryInterval <= 0 {
		c.AutoSummaryInterval = d.AutoSummaryInterval
	}
	return c
}

// Deps are the collaborators of an Assistant. Source, Transcriber and Chat
// are required.
type Deps struct {
	OpenSource  func() (AudioSource, error)
	Transcriber Transcriber
	Chat        llm.Completer
	Speaker     speech.Speaker   // optional
	Metrics     *metrics.Metrics // optional
}

// Status is a point-in-time view of the assistant.
type Status struct {
	Listening        bool       `json:"listening"`
	StartedAt        time.Time  `json:"startedAt,omitzero"`
	Format           pcm.Format `json:"format"`
	BufferedBytes    int        `json:"bufferedBytes"`
	TranscriptLength int        `json:"transcriptLength"`
	HistorySize      int        `json:"historySize"`
	PendingQueries   int        `json:"pendingQueries"`
	SpeechEnabled    bool       `json:"speechEnabled"`
}

// Assistant owns the audio source and both workers. Start and stop may be
// called repeatedly from any goroutine.
type Assistant struct {
	cfg         Config
	source      AudioSource
	transcriber Transcriber
	chat        llm.Completer
	speaker     speech.Speaker
	metrics     *metrics.Metrics
	resample    func([]byte, pcm.Format) []byte
	gate        speechGate

	audio      AudioBuffer
	transcript *Transcript
	history    History
	queries    *queryQueue

	obsMu    sync.Mutex
	observer Observer

	speechOn atomic.Bool

	closed atomic.Bool

	mu        sync.Mutex
	listening bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New validates deps, opens the audio source and returns an idle
// Assistant. Nothing is left open when it fails.
func New(cfg Config, deps Deps) (*Assistant, error) {
	switch {
	case deps.OpenSource == nil:
		return nil, errors.New("meeting: audio source is required")
	case deps.Transcriber == nil:
		return nil, errors.New("meeting: transcriber is required")
	case deps.Chat == nil:
		return nil, errors.New("meeting: chat completer is required")
	}
	cfg = cfg.withDefaults()

	src, err := deps.OpenSource()
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	f := src.Format()
	if err := f.Validate(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("audio source format %s: %w", f, err)
	}

	if cfg.MinAudioLength > cfg.TranscriptionInterval {
		slog.Warn("minimum audio length exceeds transcription interval, audio spans several cycles",
			"min", cfg.MinAudioLength, "interval", cfg.TranscriptionInterval)
	}

	a := &Assistant{
		cfg:         cfg,
		source:      src,
		transcriber: deps.Transcriber,
		chat:        deps.Chat,
		speaker:     deps.Speaker,
		metrics:     deps.Metrics,
		resample:    pcm.Resample,
		gate:        speechGate{threshold: cfg.SilenceThreshold, minSpeech: cfg.MinSpeech},
		transcript:  NewTranscript(cfg.MaxTranscriptLength),
		queries:     newQueryQueue(),
	}
	a.audio.Reset(f)
	a.speechOn.Store(cfg.SpeechEnabled && deps.Speaker != nil)
	return a, nil
}

// SetObserver replaces the event observer. Nil removes it.
func (a *Assistant) SetObserver(o Observer) {
	a.obsMu.Lock()
	a.observer = o
	a.obsMu.Unlock()
}

// emit delivers ev unless the session that produced it has been stopped.
func (a *Assistant) emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	if ctx.Err() != nil || a.observer == nil {
		return
	}
	a.observer(ev)
}

// StartListening starts the audio source and both workers. It is a no-op
// while already listening.
func (a *Assistant) StartListening() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed.Load() {
		return ErrClosed
	}
	if a.listening {
		return nil
	}

	a.audio.Reset(a.source.Format())
	a.queries.Resume()

	ctx, cancel := context.WithCancel(context.Background())
	onError := func(err error) { a.onCaptureError(ctx, err) }
	if err := a.source.Start(a.onAudio, onError); err != nil {
		cancel()
		return fmt.Errorf("start audio capture: %w", err)
	}
	a.cancel = cancel

	a.wg.Add(2)
	go a.transcriptionLoop(ctx)
	go a.queryLoop(ctx)
	if a.cfg.AutoSummary {
		a.wg.Add(1)
		go a.autoSummaryLoop(ctx)
	}

	a.listening = true
	a.startedAt = time.Now()
	slog.Info("listening started",
		"interval", a.cfg.TranscriptionInterval,
		"pending_queries", a.queries.Len())
	return nil
}

// StopListening stops the audio source and joins the workers. No event is
// delivered after it returns. Queued queries are kept for the next session.
func (a *Assistant) StopListening() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.listening {
		return nil
	}

	err := a.source.Stop()
	a.cancel()
	a.queries.Interrupt()
	a.wg.Wait()

	a.listening = false
	a.cancel = nil
	slog.Info("listening stopped",
		"duration", time.Since(a.startedAt).Round(time.Second),
		"pending_queries", a.queries.Len())
	if err != nil {
		return fmt.Errorf("stop audio capture: %w", err)
	}
	return nil
}

// IsListening reports whether a session is running.
func (a *Assistant) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// AskQuestion queues a question and returns its query id.
func (a *Assistant) AskQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	return a.enqueue(QueryQuestion, question)
}

// GenerateSummary queues a summary of the current transcript.
func (a *Assistant) GenerateSummary() (string, error) {
	return a.enqueue(QuerySummary, "")
}

// ExtractActionItems queues an action item extraction.
func (a *Assistant) ExtractActionItems() (string, error) {
	return a.enqueue(QueryActionItems, "")
}

func (a *Assistant) enqueue(kind QueryKind, question string) (string, error) {
	if a.closed.Load() {
		return "", ErrClosed
	}

	q := Query{
		ID:        uuid.NewString(),
		Kind:      kind,
		Question:  question,
		Submitted: time.Now(),
	}
	n := a.queries.Push(q)
	a.metrics.SetPendingQueries(n)
	slog.Debug("query queued", "id", q.ID, "kind", kind.String(), "pending", n)
	return q.ID, nil
}

// Transcript returns a snapshot of the rolling transcript.
func (a *Assistant) Transcript() string { return a.transcript.String() }

// ClearTranscript empties the transcript.
func (a *Assistant) ClearTranscript() {
	a.transcript.Clear()
	a.metrics.SetTranscriptChars(0)
}

// History returns the answered questions, oldest first.
func (a *Assistant) History() []Exchange { return a.history.Snapshot() }

// ClearHistory forgets all answered questions.
func (a *Assistant) ClearHistory() { a.history.Clear() }

// SetSpeechEnabled toggles reading responses aloud. Disabling it also
// interrupts current playback.
func (a *Assistant) SetSpeechEnabled(on bool) {
	if a.speaker == nil {
		return
	}
	a.speechOn.Store(on)
	if !on {
		a.speaker.Stop()
	}
}

// SpeechEnabled reports whether responses are read aloud.
func (a *Assistant) SpeechEnabled() bool { return a.speechOn.Load() }

// StopSpeaking interrupts current playback.
func (a *Assistant) StopSpeaking() {
	if a.speaker != nil {
		a.speaker.Stop()
	}
}

// Status returns a snapshot of the assistant state.
func (a *Assistant) Status() Status {
	a.mu.Lock()
	st := Status{Listening: a.listening}
	if a.listening {
		st.StartedAt = a.startedAt
	}
	a.mu.Unlock()

	st.Format = a.audio.Format()
	st.BufferedBytes = a.audio.Len()
	st.TranscriptLength = a.transcript.Len()
	st.HistorySize = a.history.Len()
	st.PendingQueries = a.queries.Len()
	st.SpeechEnabled = a.speechOn.Load()
	return st
}

// Close stops listening, abandons queued queries and releases the audio
// source.
func (a *Assistant) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	err := a.StopListening()

	if n := a.queries.Discard(); n > 0 {
		slog.Info("abandoned queued queries", "count", n)
	}
	a.metrics.SetPendingQueries(0)
	if a.speaker != nil {
		a.speaker.Stop()
	}
	if cerr := a.source.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close audio source: %w", cerr))
	}
	return err
}

// onAudio runs on the capture goroutine.
func (a *Assistant) onAudio(c audiocapture.Chunk) {
	a.audio.Append(c.Data)
	a.metrics.RecordChunk(len(c.Data))
}

// onCaptureError runs on the capture goroutine and reports err to the
// observer of the session that started the capture.
func (a *Assistant) onCaptureError(ctx context.Context, err error) {
	a.metrics.RecordCaptureError()
	slog.Warn("audio capture error", "error", err)
	a.emit(ctx, Event{Type: EventError, Error: "Audio capture error: " + err.Error()})
}

func (a *Assistant) autoSummaryLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.AutoSummaryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.transcript.Len() == 0 {
				continue
			}
			if _, err := a.enqueue(QuerySummary, ""); err != nil {
				return
			}
		}
	}
}
