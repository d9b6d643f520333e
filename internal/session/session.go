// Package session owns the live document of a translation run and keeps its
// rendered Markdown current as translation events arrive.
package session

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babelmark/babelmark/internal/mdtree"
	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/translate"
)

// Status represents the state of a session.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Session is one document being translated. The tree, its index and the
// translation state are guarded by a single mutex held for each
// apply-and-render cycle.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	doc       *mdtree.Document
	index     segment.Index
	segments  []segment.Segment
	state     *State
	status    Status
	rendered  string
	updatedAt time.Time
	cancel    context.CancelFunc
	cancelled bool
}

// New parses markdown and segments it. It returns segment.ErrNoSegments when
// nothing in the document is translatable.
func New(markdown string, opts segment.Options) (*Session, error) {
	doc := mdtree.Parse([]byte(markdown))
	res := segment.Split(doc, opts)
	if len(res.Segments) == 0 {
		return nil, segment.ErrNoSegments
	}
	if err := res.Index.Validate(doc); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		doc:       doc,
		index:     res.Index,
		segments:  res.Segments,
		state:     NewState(),
		status:    StatusQueued,
		rendered:  mdtree.Render(doc),
		updatedAt: now,
	}, nil
}

// Segments returns the segments of the document in document order.
func (s *Session) Segments() []segment.Segment {
	return s.segments
}

// Handle folds ev into the state, re-applies every translation to the tree
// and returns the freshly rendered Markdown.
func (s *Session) Handle(ev translate.Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Add(ev)
	if ev.Type == translate.EventDelta {
		segment.Apply(s.doc, s.index, s.state.Text)
		s.rendered = mdtree.Render(s.doc)
	}
	s.updatedAt = time.Now()
	return s.rendered
}

// Run translates every segment and blocks until the run finishes or ctx is
// cancelled. The state is reset at the start of each run. onRender, if not
// nil, receives the rendered document after each event.
func (s *Session) Run(ctx context.Context, fn translate.TranslateFunc, concurrency int, onRender func(string)) Status {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return StatusCancelled
	}
	s.cancel = cancel
	s.state = NewState()
	segment.Apply(s.doc, s.index, s.state.Text)
	s.rendered = mdtree.Render(s.doc)
	s.setStatusLocked(StatusRunning)
	s.mu.Unlock()

	for ev := range translate.Dispatch(ctx, s.segments, fn, concurrency) {
		out := s.Handle(ev)
		if onRender != nil {
			onRender(out)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	switch {
	case ctx.Err() != nil:
		s.setStatusLocked(StatusCancelled)
	case len(s.state.Errors) == 0:
		s.setStatusLocked(StatusCompleted)
	case len(s.state.Errors) < len(s.segments):
		s.setStatusLocked(StatusPartial)
	default:
		s.setStatusLocked(StatusFailed)
	}
	return s.status
}

// Cancel stops a running session, or prevents a queued one from starting.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.status == StatusQueued {
		s.setStatusLocked(StatusCancelled)
	}
}

// Markdown returns the most recent render.
func (s *Session) Markdown() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

func (s *Session) setStatusLocked(st Status) {
	s.status = st
	s.updatedAt = time.Now()
}

// Snapshot is a read-only, JSON-safe copy of session state.
type Snapshot struct {
	ID        string            `json:"session_id"`
	Status    Status            `json:"status"`
	Total     int               `json:"total"`
	Done      int               `json:"done"`
	Errors    map[string]string `json:"errors"`
	Markdown  string            `json:"markdown"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.ID,
		Status:    s.status,
		Total:     len(s.segments),
		Done:      len(s.state.Done),
		Errors:    maps.Clone(s.state.Errors),
		Markdown:  s.rendered,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) lastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusQueued || s.status == StatusRunning
}
