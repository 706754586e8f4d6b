package meeting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/huddle/audiocapture"
	"go.aimuz.me/huddle/internal/types"
	"go.aimuz.me/huddle/llm"
	"go.aimuz.me/huddle/pcm"
)

type fakeSource struct {
	format pcm.Format

	mu      sync.Mutex
	handler audiocapture.Handler
	onError audiocapture.ErrorHandler
	starts  int
	stops   int
	closed  bool
}

func (s *fakeSource) Format() pcm.Format { return s.format }

func (s *fakeSource) Start(h audiocapture.Handler, onError audiocapture.ErrorHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return nil
	}
	s.handler, s.onError = h, onError
	s.starts++
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil
	}
	s.handler = nil
	s.stops++
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// fail reports err through the error handler registered by the last Start.
func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	onError := s.onError
	s.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// feed delivers data in chunks of size bytes, as the capture goroutine would.
func (s *fakeSource) feed(data []byte, size int) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	for len(data) > 0 {
		n := min(size, len(data))
		h(audiocapture.Chunk{Data: append([]byte(nil), data[:n]...)})
		data = data[n:]
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls [][]byte
	text  string
	err   error
	fn    func(ctx context.Context) (string, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, _ pcm.Format) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audio)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeChat struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (f *fakeChat) Complete(_ context.Context, msgs []llm.Message) (string, types.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.reply, types.Usage{TotalTokens: 7}, f.err
}

func (f *fakeChat) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeSpeaker struct {
	spoken chan string
	stops  int
	mu     sync.Mutex
}

func (s *fakeSpeaker) Speak(text string) { s.spoken <- text }

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

type harness struct {
	a      *Assistant
	src    *fakeSource
	stt    *fakeTranscriber
	chat   *fakeChat
	events chan Event
}

func newHarness(t *testing.T, cfg Config, f pcm.Format) *harness {
	t.Helper()
	h := &harness{
		src:    &fakeSource{format: f},
		stt:    &fakeTranscriber{},
		chat:   &fakeChat{},
		events: make(chan Event, 64),
	}
	a, err := New(cfg, Deps{
		OpenSource:  func() (AudioSource, error) { return h.src, nil },
		Transcriber: h.stt,
		Chat:        h.chat,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.SetObserver(func(ev Event) { h.events <- ev })
	t.Cleanup(func() { _ = a.Close() })
	h.a = a
	return h
}

func (h *harness) waitEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func (h *harness) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %v %q", ev.Type, ev.Text)
	default:
	}
}

// idleConfig keeps the transcription worker from firing on its own.
func idleConfig() Config {
	cfg := DefaultConfig()
	cfg.TranscriptionInterval = time.Hour
	return cfg
}

var float48kStereo = pcm.NewFormat(48000, 32, 2, true)

func TestNewValidatesDeps(t *testing.T) {
	src := &fakeSource{format: pcm.Target()}
	open := func() (AudioSource, error) { return src, nil }

	tests := []struct {
		name string
		deps Deps
	}{
		{"no source", Deps{Transcriber: &fakeTranscriber{}, Chat: &fakeChat{}}},
		{"no transcriber", Deps{OpenSource: open, Chat: &fakeChat{}}},
		{"no chat", Deps{OpenSource: open, Transcriber: &fakeTranscriber{}}},
		{"source fails", Deps{
			OpenSource:  func() (AudioSource, error) { return nil, errors.New("no device") },
			Transcriber: &fakeTranscriber{},
			Chat:        &fakeChat{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(DefaultConfig(), tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClosesSourceOnUnsupportedFormat(t *testing.T) {
	src := &fakeSource{format: pcm.NewFormat(44100, 8, 1, false)}
	_, err := New(DefaultConfig(), Deps{
		OpenSource:  func() (AudioSource, error) { return src, nil },
		Transcriber: &fakeTranscriber{},
		Chat:        &fakeChat{},
	})
	if !errors.Is(err, pcm.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
	if !src.closed {
		t.Error("source should be closed after a failed New")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())

	for i := 0; i < 2; i++ {
		if err := h.a.StartListening(); err != nil {
			t.Fatalf("StartListening() error = %v", err)
		}
	}
	if !h.a.IsListening() || h.src.starts != 1 {
		t.Fatalf("listening = %v, starts = %d", h.a.IsListening(), h.src.starts)
	}

	for i := 0; i < 2; i++ {
		if err := h.a.StopListening(); err != nil {
			t.Fatalf("StopListening() error = %v", err)
		}
	}
	if h.a.IsListening() || h.src.stops != 1 {
		t.Fatalf("listening = %v, stops = %d", h.a.IsListening(), h.src.stops)
	}

	if err := h.a.StartListening(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if h.src.starts != 2 {
		t.Errorf("starts = %d, want 2", h.src.starts)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	if err := h.a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.src.closed || h.src.stops != 1 {
		t.Errorf("source closed = %v, stops = %d", h.src.closed, h.src.stops)
	}
	if err := h.a.StartListening(); !errors.Is(err, ErrClosed) {
		t.Errorf("StartListening after Close = %v, want ErrClosed", err)
	}
	if _, err := h.a.AskQuestion("hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("AskQuestion after Close = %v, want ErrClosed", err)
	}
	if err := h.a.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestShortAudioIsPutBack(t *testing.T) {
	cfg := idleConfig()
	cfg.MinAudioLength = 2 * time.Second
	h := newHarness(t, cfg, float48kStereo)

	resamples := 0
	h.a.resample = func(b []byte, f pcm.Format) []byte {
		resamples++
		return pcm.Resample(b, f)
	}

	one := make([]byte, float48kStereo.AvgBytesPerSec)
	for i := range one {
		one[i] = byte(i % 251)
	}
	h.a.audio.Append(one)

	h.a.transcribeOnce(context.Background())

	if resamples != 0 || h.stt.callCount() != 0 {
		t.Errorf("short audio reached resample=%d transcribe=%d", resamples, h.stt.callCount())
	}
	got, _ := h.a.audio.Drain()
	if !bytes.Equal(got, one) {
		t.Errorf("buffer holds %d bytes, want the %d drained bytes unchanged", len(got), len(one))
	}
	h.expectNoEvent(t)
}

func TestSilenceProducesNoTranscriptEvent(t *testing.T) {
	cfg := idleConfig()
	cfg.MinAudioLength = 3 * time.Second
	h := newHarness(t, cfg, float48kStereo)

	var lens []int
	h.a.resample = func(b []byte, f pcm.Format) []byte {
		out := pcm.Resample(b, f)
		lens = append(lens, len(out)/2)
		return out
	}

	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	silence := make([]byte, 20*float48kStereo.AvgBytesPerSec)
	h.src.feed(silence, 480*int(float48kStereo.BlockAlign))

	h.a.transcribeOnce(context.Background())

	if len(lens) != 1 {
		t.Fatalf("resample calls = %d, want 1", len(lens))
	}
	if lens[0] < 319999 || lens[0] > 320000 {
		t.Errorf("resampled samples = %d, want ~320000", lens[0])
	}
	if h.stt.callCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.stt.callCount())
	}
	for i, s := range pcm.Samples(h.stt.calls[0]) {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
	h.expectNoEvent(t)
	if h.a.Transcript() != "" {
		t.Errorf("transcript = %q, want empty", h.a.Transcript())
	}
}

func TestSilenceGateSkipsTranscription(t *testing.T) {
	cfg := idleConfig()
	cfg.MinAudioLength = 0
	cfg.SilenceThreshold = 0.01
	h := newHarness(t, cfg, pcm.Target())

	h.a.audio.Append(make([]byte, 32000))
	h.a.transcribeOnce(context.Background())
	if h.stt.callCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", h.stt.callCount())
	}
}

func TestTranscriptionAppendsAndEmits(t *testing.T) {
	cfg := idleConfig()
	cfg.MinAudioLength = 0
	h := newHarness(t, cfg, pcm.Target())
	h.stt.text = "  hello there "

	h.a.audio.Append(make([]byte, 3200))
	h.a.transcribeOnce(context.Background())

	ev := h.waitEvent(t)
	if ev.Type != EventTranscriptUpdate || ev.Text != "hello there" {
		t.Errorf("event = %v %q", ev.Type, ev.Text)
	}
	if ev.Time.IsZero() {
		t.Error("event time not set")
	}

	h.stt.text = ""
	h.stt.err = &types.TransportError{Service: "transcription", StatusCode: 500, Err: errors.New("boom")}
	h.a.audio.Append(make([]byte, 3200))
	h.a.transcribeOnce(context.Background())
	h.expectNoEvent(t)

	if got := h.a.Transcript(); got != "hello there" {
		t.Errorf("transcript = %q", got)
	}
}

func TestAskQuestionEndToEnd(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	h.a.transcript.Append("team discussed X")
	h.chat.reply = "Do Y"

	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	id, err := h.a.AskQuestion("What's next?")
	if err != nil {
		t.Fatal(err)
	}

	ev := h.waitEvent(t)
	if ev.Type != EventAIResponse || ev.Text != "Do Y" || ev.QueryID != id {
		t.Fatalf("event = %+v", ev)
	}

	msgs := h.chat.lastCall()
	want := []llm.Message{
		{Role: llm.RoleSystem, Content: DefaultQuestionPrompt},
		{Role: llm.RoleSystem, Content: "Current meeting/interview transcript:\nteam discussed X"},
		{Role: llm.RoleUser, Content: "What's next?"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %d, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}

	hist := h.a.History()
	if len(hist) != 1 || hist[0] != (Exchange{Question: "What's next?", Answer: "Do Y"}) {
		t.Errorf("history = %+v", hist)
	}
}

func TestQuestionReplaysHistory(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	h.a.history.Add("q1", "a1")
	h.a.history.Add("q2", "a2")
	h.chat.reply = "a3"

	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.a.AskQuestion("q3"); err != nil {
		t.Fatal(err)
	}
	h.waitEvent(t)

	msgs := h.chat.lastCall()
	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.Role+":"+m.Content)
	}
	got := strings.Join(roles[1:], "|")
	want := "user:q1|assistant:a1|user:q2|assistant:a2|user:q3"
	if got != want {
		t.Errorf("turns = %s, want %s", got, want)
	}
}

func TestTranscriptQueries(t *testing.T) {
	tests := []struct {
		name     string
		submit   func(*Assistant) (string, error)
		wantType EventType
		wantText string
	}{
		{"summary", (*Assistant).GenerateSummary, EventSummaryReady, summaryInstruction},
		{"action items", (*Assistant).ExtractActionItems, EventActionItemsReady, actionItemsInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, idleConfig(), pcm.Target())
			h.a.transcript.Append("we agreed on Z")
			h.chat.reply = "- Z"

			if err := h.a.StartListening(); err != nil {
				t.Fatal(err)
			}
			if _, err := tt.submit(h.a); err != nil {
				t.Fatal(err)
			}

			ev := h.waitEvent(t)
			if ev.Type != tt.wantType || ev.Text != "- Z" {
				t.Fatalf("event = %+v", ev)
			}
			msgs := h.chat.lastCall()
			if len(msgs) != 2 || msgs[0].Content != DefaultSystemPrompt {
				t.Fatalf("messages = %+v", msgs)
			}
			if want := tt.wantText + "\n\nTranscript:\nwe agreed on Z"; msgs[1].Content != want {
				t.Errorf("user message = %q, want %q", msgs[1].Content, want)
			}
			if len(h.a.History()) != 0 {
				t.Error("transcript queries must not touch history")
			}
		})
	}
}

func TestQueryFailureEmitsError(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"transport error", "", &types.TransportError{Service: "chat", StatusCode: 401, Err: errors.New("bad key")}, "Failed to get AI response: chat: 401"},
		{"empty reply", "   ", nil, "Failed to get AI response: empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, idleConfig(), pcm.Target())
			h.chat.reply, h.chat.err = tt.reply, tt.err

			if err := h.a.StartListening(); err != nil {
				t.Fatal(err)
			}
			id, _ := h.a.AskQuestion("anything?")

			ev := h.waitEvent(t)
			if ev.Type != EventError || ev.QueryID != id {
				t.Fatalf("event = %+v", ev)
			}
			if !strings.HasPrefix(ev.Error, tt.want) {
				t.Errorf("error = %q, want prefix %q", ev.Error, tt.want)
			}
			if len(h.a.History()) != 0 {
				t.Error("failed query must not be recorded")
			}
		})
	}
}

func TestAskQuestionRejectsBlank(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	if _, err := h.a.AskQuestion("  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("error = %v, want ErrEmptyQuestion", err)
	}
}

func TestQueuedQueriesSurviveStop(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	h.chat.reply = "later"

	id, err := h.a.AskQuestion("queued while idle")
	if err != nil {
		t.Fatal(err)
	}
	if st := h.a.Status(); st.PendingQueries != 1 || st.Listening {
		t.Fatalf("status = %+v", st)
	}

	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	if ev := h.waitEvent(t); ev.QueryID != id || ev.Text != "later" {
		t.Errorf("event = %+v", ev)
	}
}

func TestStopSuppressesLateEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TranscriptionInterval = 10 * time.Millisecond
	cfg.MinAudioLength = 0
	h := newHarness(t, cfg, pcm.Target())

	entered := make(chan context.Context, 1)
	release := make(chan struct{})
	h.stt.fn = func(ctx context.Context) (string, error) {
		entered <- ctx
		<-release
		return "late words", nil
	}

	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}
	h.src.feed(make([]byte, 3200), 320)

	var callCtx context.Context
	select {
	case callCtx = <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("transcription never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- h.a.StopListening() }()

	select {
	case <-callCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("StopListening did not cancel the in-flight call")
	}
	close(release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("StopListening() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopListening did not return")
	}

	h.expectNoEvent(t)
	if h.a.IsListening() || h.src.stops != 1 {
		t.Errorf("listening = %v, source stops = %d", h.a.IsListening(), h.src.stops)
	}
}

func TestCaptureErrorIsReported(t *testing.T) {
	h := newHarness(t, idleConfig(), pcm.Target())
	if err := h.a.StartListening(); err != nil {
		t.Fatal(err)
	}

	h.src.fail(errors.New("device unplugged"))
	ev := h.waitEvent(t)
	if ev.Type != EventError || ev.Error != "Audio capture error: device unplugged" {
		t.Errorf("event = %+v", ev)
	}

	if err := h.a.StopListening(); err != nil {
		t.Fatal(err)
	}
	h.src.fail(errors.New("after stop"))
	h.expectNoEvent(t)
}

func TestResponseIsSpoken(t *testing.T) {
	src := &fakeSource{format: pcm.Target()}
	spk := &fakeSpeaker{spoken: make(chan string, 1)}
	cfg := idleConfig()
	cfg.SpeechEnabled = true
	a, err := New(cfg, Deps{
		OpenSource:  func() (AudioSource, error) { return src, nil },
		Transcriber: &fakeTranscriber{},
		Chat:        &fakeChat{reply: "spoken answer"},
		Speaker:     spk,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if !a.SpeechEnabled() {
		t.Fatal("speech should be enabled")
	}
	if err := a.StartListening(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.AskQuestion("say it"); err != nil {
		t.Fatal(err)
	}

	select {
	case text := <-spk.spoken:
		if text != "spoken answer" {
			t.Errorf("spoken = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("response was not spoken")
	}

	a.SetSpeechEnabled(false)
	spk.mu.Lock()
	stops := spk.stops
	spk.mu.Unlock()
	if a.SpeechEnabled() || stops == 0 {
		t.Errorf("enabled = %v, stops = %d", a.SpeechEnabled(), stops)
	}
}
