package translate

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/babelmark/babelmark/internal/segment"
)

const (
	MinConcurrency     = 1
	MaxConcurrency     = 30
	DefaultConcurrency = 3
)

// ClampConcurrency bounds n to [MinConcurrency, MaxConcurrency].
func ClampConcurrency(n int) int {
	return max(MinConcurrency, min(n, MaxConcurrency))
}

// TranslateFunc streams the translation of one segment. The sequence must
// stop when ctx is cancelled and should end with a done event; failures are
// reported as an error event followed by done.
type TranslateFunc func(ctx context.Context, seg segment.Segment) iter.Seq[Event]

// Dispatch translates segs with at most concurrency calls in flight and
// returns the merged event stream. Segments are started in order. Each
// segment yields exactly one done event; if fn ends without one, Dispatch
// supplies it. The channel is closed after every started segment has
// finished, or promptly after ctx is cancelled. Once ctx is cancelled no
// further segments are started and no further events are sent.
func Dispatch(ctx context.Context, segs []segment.Segment, fn TranslateFunc, concurrency int) <-chan Event {
	out := make(chan Event)
	if len(segs) == 0 {
		close(out)
		return out
	}

	queue := make(chan segment.Segment, len(segs))
	for _, s := range segs {
		queue <- s
	}
	close(queue)

	workers := min(ClampConcurrency(concurrency), len(segs))

	go func() {
		defer close(out)
		var g errgroup.Group
		for range workers {
			g.Go(func() error {
				for seg := range queue {
					if ctx.Err() != nil {
						return nil
					}
					run(ctx, seg, fn, out)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// run forwards the events of one segment until its first done event.
func run(ctx context.Context, seg segment.Segment, fn TranslateFunc, out chan<- Event) {
	for ev := range fn(ctx, seg) {
		if ev.SegmentID == "" {
			ev.SegmentID = seg.ID
		}
		if !send(ctx, out, ev) {
			return
		}
		if ev.Type == EventDone {
			return
		}
	}
	if ctx.Err() == nil {
		send(ctx, out, Done(seg.ID))
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
