package meeting

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/huddle/internal/metrics"
	"go.aimuz.me/huddle/llm"
)

func (a *Assistant) queryLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		q, ok := a.queries.Pop()
		if !ok {
			return
		}
		a.metrics.SetPendingQueries(a.queries.Len())
		a.process(ctx, q)
	}
}

// process answers one query and emits its result.
func (a *Assistant) process(ctx context.Context, q Query) {
	transcript := a.transcript.String()

	var (
		msgs []llm.Message
		typ  EventType
	)
	switch q.Kind {
	case QueryQuestion:
		msgs = buildQuestionMessages(a.cfg.QuestionPrompt, transcript, a.history.Snapshot(), q.Question)
		typ = EventAIResponse
	case QuerySummary:
		msgs = buildTranscriptMessages(a.cfg.SystemPrompt, summaryInstruction, transcript)
		typ = EventSummaryReady
	case QueryActionItems:
		msgs = buildTranscriptMessages(a.cfg.SystemPrompt, actionItemsInstruction, transcript)
		typ = EventActionItemsReady
	default:
		slog.Error("unknown query kind", "id", q.ID, "kind", int(q.Kind))
		return
	}

	start := time.Now()
	text, usage, err := a.chat.Complete(ctx, msgs)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errEmptyResponse
	}
	if err != nil {
		a.metrics.RecordQuery(q.Kind.String(), metrics.OutcomeError, time.Since(start))
		if ctx.Err() == nil {
			slog.Warn("query failed", "id", q.ID, "kind", q.Kind.String(), "error", err)
		}
		a.emit(ctx, Event{
			Type:    EventError,
			Error:   "Failed to get AI response: " + err.Error(),
			QueryID: q.ID,
		})
		return
	}

	if q.Kind == QueryQuestion {
		a.history.Add(q.Question, text)
	}
	a.metrics.RecordQuery(q.Kind.String(), metrics.OutcomeOK, time.Since(start))
	slog.Debug("query answered",
		"id", q.ID,
		"kind", q.Kind.String(),
		"wait", start.Sub(q.Submitted).Round(time.Millisecond),
		"tokens", usage.TotalTokens)

	a.emit(ctx, Event{Type: typ, Text: text, QueryID: q.ID})

	if a.speechOn.Load() && ctx.Err() == nil {
		a.speaker.Speak(text)
	}
}
