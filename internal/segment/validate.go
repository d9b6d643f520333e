package segment

import (
	"errors"
	"fmt"
	"strings"
)

// MaxSegmentBytes bounds the text of a single segment accepted from clients.
const MaxSegmentBytes = 64 << 10

// ErrNoSegments is returned when a request carries no segments.
var ErrNoSegments = errors.New("no segments provided")

var validKinds = map[Kind]bool{
	"":           true,
	KindText:     true,
	KindImageAlt: true,
}

// Validate checks a client-supplied segment list before any of it is sent to
// a backend. IDs must be present and unique.
func Validate(segs []Segment) error {
	if len(segs) == 0 {
		return ErrNoSegments
	}
	seen := make(map[string]bool, len(segs))
	for i, s := range segs {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("segment %d: missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("segment %d: duplicate id %q", i, id)
		}
		seen[id] = true
		if !validKinds[s.Kind] {
			return fmt.Errorf("segment %q: unknown kind %q", id, s.Kind)
		}
		if len(s.Text) > MaxSegmentBytes {
			return fmt.Errorf("segment %q: text exceeds %d bytes", id, MaxSegmentBytes)
		}
	}
	return nil
}
