package meeting

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/huddle/pcm"
)

func (a *Assistant) transcriptionLoop(ctx context.Context) {
	defer a.wg.Done()

	timer := time.NewTimer(a.cfg.TranscriptionInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		a.transcribeOnce(ctx)
		timer.Reset(a.cfg.TranscriptionInterval)
	}
}

// transcribeOnce runs one drain, resample and transcribe cycle.
func (a *Assistant) transcribeOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	data, f := a.audio.Drain()
	if len(data) == 0 {
		return
	}

	if f.AvgBytesPerSec > 0 {
		minBytes := int(float64(f.AvgBytesPerSec) * a.cfg.MinAudioLength.Seconds())
		if len(data) < minBytes {
			a.audio.PutBack(data)
			a.metrics.RecordDeferred()
			slog.Debug("deferring short audio", "bytes", len(data), "min_bytes", minBytes)
			return
		}
	}

	audio := a.resample(data, f)
	if len(audio) == 0 {
		slog.Debug("resampled audio is empty", "bytes", len(data))
		return
	}
	if ok, voiced, peak := a.gate.pass(audio); !ok {
		slog.Debug("skipping silent audio", "voiced", voiced, "peak_rms", peak)
		return
	}

	start := time.Now()
	text, err := a.transcriber.Transcribe(ctx, audio, pcm.Target())
	a.metrics.RecordTranscription(time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("transcription failed", "error", err)
		}
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	n := a.transcript.Append(text)
	a.metrics.SetTranscriptChars(n)
	slog.Debug("transcript updated", "chars", n, "seconds", f.Duration(len(data)))
	a.emit(ctx, Event{Type: EventTranscriptUpdate, Text: text})
}
