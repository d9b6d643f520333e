package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/translate"
)

// ErrStopped is returned by Submit once the manager is shutting down.
var ErrStopped = errors.New("session manager stopped")

// Backend translates the segments of one session. The manager calls Close
// once the session no longer needs it.
type Backend interface {
	Translate(ctx context.Context, seg segment.Segment) iter.Seq[translate.Event]
	Close()
}

// ManagerConfig sizes the background runner.
type ManagerConfig struct {
	// Workers is the number of sessions translated at the same time.
	Workers      int
	MaxQueueSize int
	TTL          time.Duration
	// CleanupEvery is the store eviction interval.
	CleanupEvery time.Duration
}

type job struct {
	sess        *Session
	backend     Backend
	concurrency int
}

// Manager runs submitted sessions in the background.
type Manager struct {
	store *Store
	queue chan job
	log   *slog.Logger
	cfg   ManagerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped and sends on queue.
	mu      sync.RWMutex
	stopped bool
}

func NewManager(cfg ManagerConfig, log *slog.Logger) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 5 * time.Minute
	}
	return &Manager{
		store: NewStore(cfg.TTL),
		queue: make(chan job, cfg.MaxQueueSize),
		log:   log,
		cfg:   cfg,
	}
}

// Start launches worker goroutines.
func (m *Manager) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for range m.cfg.Workers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case j, ok := <-m.queue:
					if !ok {
						return
					}
					m.run(workerCtx, j)
				}
			}
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				m.store.Cleanup()
			}
		}
	}()
}

func (m *Manager) run(ctx context.Context, j job) {
	log := m.log.With("session_id", j.sess.ID)
	log.Info("session started", "segments", len(j.sess.Segments()), "concurrency", j.concurrency)
	defer j.backend.Close()
	start := time.Now()
	status := j.sess.Run(ctx, j.backend.Translate, j.concurrency, nil)
	snap := j.sess.Snapshot()
	log.Info("session finished", "status", status, "errors", len(snap.Errors), "duration_ms", time.Since(start).Milliseconds())
}

// Stop cancels running sessions and waits for the workers to exit. Sessions
// still queued are cancelled and their backends closed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.queue)
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	for j := range m.queue {
		j.sess.Cancel()
		j.backend.Close()
	}
}

// Submit registers sess and queues it for translation with b. The manager
// owns b from here on, including when Submit fails.
func (m *Manager) Submit(sess *Session, b Backend, concurrency int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		sess.Cancel()
		b.Close()
		return ErrStopped
	}

	m.store.Put(sess)
	select {
	case m.queue <- job{sess: sess, backend: b, concurrency: concurrency}:
		return nil
	default:
		sess.Cancel()
		b.Close()
		return fmt.Errorf("session queue is full (%d)", m.cfg.MaxQueueSize)
	}
}

// Get returns a session by ID, or nil.
func (m *Manager) Get(id string) *Session {
	return m.store.Get(id)
}

// Cancel stops a session and removes it from the registry.
func (m *Manager) Cancel(id string) error {
	sess := m.store.Get(id)
	if sess == nil {
		return ErrNotFound
	}
	sess.Cancel()
	m.store.Delete(id)
	return nil
}

// QueueDepth returns current queue depth.
func (m *Manager) QueueDepth() int {
	return len(m.queue)
}

// Active returns the number of registered sessions.
func (m *Manager) Active() int {
	return m.store.Len()
}
