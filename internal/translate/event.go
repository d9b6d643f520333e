// Package translate drives per-segment translation calls through a bounded
// worker pool and merges their progress into one event stream.
package translate

// EventType tags an Event.
type EventType string

const (
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one unit of translation progress for a segment. It is also the
// JSON frame written to streaming clients.
type Event struct {
	Type      EventType `json:"type"`
	SegmentID string    `json:"segmentId"`
	Delta     string    `json:"delta,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func Delta(segmentID, text string) Event {
	return Event{Type: EventDelta, SegmentID: segmentID, Delta: text}
}

func Done(segmentID string) Event {
	return Event{Type: EventDone, SegmentID: segmentID}
}

func Error(segmentID, msg string) Event {
	return Event{Type: EventError, SegmentID: segmentID, Message: msg}
}
