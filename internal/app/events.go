package app

import (
	"fmt"
	"io"
	"log/slog"

	"go.aimuz.me/huddle/meeting"
)

// fanout delivers each event to every non-nil observer in order.
func fanout(observers ...meeting.Observer) meeting.Observer {
	var list []meeting.Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return func(ev meeting.Event) {
		for _, o := range list {
			o(ev)
		}
	}
}

// consoleObserver prints events for terminal use. Calls are serialized by
// the assistant.
func consoleObserver(w io.Writer) meeting.Observer {
	return func(ev meeting.Event) {
		var err error
		switch ev.Type {
		case meeting.EventTranscriptUpdate:
			_, err = fmt.Fprintf(w, "[%s] %s\n", ev.Time.Format("15:04:05"), ev.Text)
		case meeting.EventAIResponse:
			_, err = fmt.Fprintf(w, "\n== answer ==\n%s\n\n", ev.Text)
		case meeting.EventSummaryReady:
			_, err = fmt.Fprintf(w, "\n== summary ==\n%s\n\n", ev.Text)
		case meeting.EventActionItemsReady:
			_, err = fmt.Fprintf(w, "\n== action items ==\n%s\n\n", ev.Text)
		case meeting.EventError:
			_, err = fmt.Fprintf(w, "error: %s\n", ev.Error)
		}
		if err != nil {
			slog.Debug("write console event", "error", err)
		}
	}
}

func logObserver(ev meeting.Event) {
	if ev.Type == meeting.EventError {
		slog.Warn("assistant error", "query", ev.QueryID, "error", ev.Error)
		return
	}
	slog.Debug("assistant event", "type", ev.Type.String(), "query", ev.QueryID, "chars", len(ev.Text))
}
