package session

import "github.com/babelmark/babelmark/internal/translate"

// State accumulates the progress of one translation run.
type State struct {
	// Text holds the translated text received so far per segment.
	Text   map[string]string
	Done   map[string]bool
	Errors map[string]string
}

func NewState() *State {
	return &State{
		Text:   make(map[string]string),
		Done:   make(map[string]bool),
		Errors: make(map[string]string),
	}
}

// Add folds one event into the state. Deltas are appended in arrival order.
func (s *State) Add(ev translate.Event) {
	switch ev.Type {
	case translate.EventDelta:
		s.Text[ev.SegmentID] += ev.Delta
	case translate.EventDone:
		s.Done[ev.SegmentID] = true
	case translate.EventError:
		s.Errors[ev.SegmentID] = ev.Message
	}
}
