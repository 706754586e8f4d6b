package meeting

import (
	"fmt"
	"time"
)

// EventType identifies what an Event reports.
type EventType int

const (
	EventTranscriptUpdate EventType = iota
	EventAIResponse
	EventSummaryReady
	EventActionItemsReady
	EventError
)

var eventNames = [...]string{
	EventTranscriptUpdate: "transcript_update",
	EventAIResponse:       "ai_response",
	EventSummaryReady:     "summary_ready",
	EventActionItemsReady: "action_items_ready",
	EventError:            "error",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *EventType) UnmarshalText(b []byte) error {
	for i, name := range eventNames {
		if name == string(b) {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type: %q", b)
}

// Event is delivered to the observer from whichever worker produced it.
type Event struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Error   string    `json:"error,omitempty"`
	QueryID string    `json:"queryId,omitempty"`
	Time    time.Time `json:"time"`
}

// Observer receives events synchronously on worker goroutines. It must not
// block and must not call back into SetObserver or StopListening.
type Observer func(Event)
