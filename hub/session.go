package hub

import (
	"sync"
	"sync/atomic"

	"github.com/onnwee/stream-hub/event"
)

// Session is one consumer's subscription. Events arrive on a buffered queue;
// a session that stops draining it is evicted by the hub rather than allowed
// to stall everyone else.
type Session struct {
	ID string

	ch        chan event.Envelope
	done      chan struct{}
	closeOnce sync.Once
	evicted   atomic.Bool
}

func newSession(queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		ID:   event.NewID(),
		ch:   make(chan event.Envelope, queueSize),
		done: make(chan struct{}),
	}
}

// Events is the stream of envelopes for this session, snapshot first.
func (s *Session) Events() <-chan event.Envelope { return s.ch }

// Done is closed when the session is unsubscribed or evicted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Evicted reports whether the hub dropped this session for not draining its
// queue, as opposed to a voluntary unsubscribe. Meaningful once Done fires.
func (s *Session) Evicted() bool { return s.evicted.Load() }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) evict() {
	s.evicted.Store(true)
	s.close()
}
