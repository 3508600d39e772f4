// Package hub fans normalized events out to consumer sessions and retains a
// bounded replay buffer so new consumers join with context.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
)

// SnapshotSource supplies the current widget document for session snapshots.
// The widget store implements it.
type SnapshotSource interface {
	Snapshot() map[string]any
}

// Hub is the broadcast core. All publishes and subscriptions serialize on one
// mutex, which is what makes snapshot-then-subscribe atomic: between reading
// history and registering the session, no publish can interleave.
type Hub struct {
	mu        sync.Mutex
	hist      *history
	sessions  map[*Session]struct{}
	snap      SnapshotSource
	queueSize int
	logger    *slog.Logger

	// onActivity feeds activity into the widget store's recent events. Called
	// outside the hub lock: the store's Apply publishes back through the hub.
	onActivity func(event.ActivityEvent)
}

func New(historySize, queueSize int, snap SnapshotSource) *Hub {
	return &Hub{
		hist:      newHistory(historySize),
		sessions:  make(map[*Session]struct{}),
		snap:      snap,
		queueSize: queueSize,
		logger:    slog.Default().With(slog.String("component", "hub")),
	}
}

// SetActivityHook registers the activity fan-in callback. Must be called
// before Start/first publish.
func (h *Hub) SetActivityHook(fn func(event.ActivityEvent)) {
	h.onActivity = fn
}

// Subscribe atomically captures a snapshot and registers a new session. The
// snapshot envelope is always the first item on the session's queue.
func (h *Hub) Subscribe() *Session {
	s := newSession(h.queueSize + 1)

	h.mu.Lock()
	snap := event.Snapshot{History: h.hist.items()}
	if h.snap != nil {
		snap.WidgetState = h.snap.Snapshot()
	}
	s.ch <- event.MustEnvelope(event.TypeSnapshot, snap)
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()

	telemetry.AddSessions(1)
	h.logger.Debug("session subscribed", slog.String("session", s.ID), slog.Int("sessions", n))
	return s
}

// Unsubscribe removes a session. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
	}
	h.mu.Unlock()
	if ok {
		s.close()
		telemetry.AddSessions(-1)
		h.logger.Debug("session unsubscribed", slog.String("session", s.ID))
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// PublishMessage appends a chat message to history and fans it out.
func (h *Hub) PublishMessage(msg event.Message) {
	env := event.MustEnvelope(event.TypeChatMessage, msg)
	h.mu.Lock()
	h.hist.add(msg)
	h.fanOutLocked(env)
	h.mu.Unlock()
}

// PublishActivity fans out an activity event and feeds the widget hook.
func (h *Hub) PublishActivity(ev event.ActivityEvent) {
	env := event.MustEnvelope(event.TypeActivityEvent, ev)
	h.mu.Lock()
	h.fanOutLocked(env)
	h.mu.Unlock()
	if h.onActivity != nil {
		h.onActivity(ev)
	}
}

// Publish fans out a pre-built envelope (widget deltas, timer-finished).
func (h *Hub) Publish(env event.Envelope) {
	h.mu.Lock()
	h.fanOutLocked(env)
	h.mu.Unlock()
}

// History returns the retained messages oldest-first.
func (h *Hub) History() []event.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.items()
}

// Simulate builds a synthetic event from client-supplied fields and runs it
// through the same publish path as connector events.
func (h *Hub) Simulate(req event.SimulateRequest) error {
	platform := event.Platform(stringField(req.Data, "platform"))
	if platform == "" {
		platform = event.Twitch
	}
	if !platform.Valid() {
		return fmt.Errorf("unknown platform %q", platform)
	}
	user := stringField(req.Data, "user")
	if user == "" {
		user = "TestUser"
	}

	switch req.Type {
	case event.TypeChatMessage:
		text := stringField(req.Data, "text")
		if text == "" {
			return fmt.Errorf("simulated chat message needs text")
		}
		h.PublishMessage(event.NewMessage(platform, user, text, stringField(req.Data, "color"), stringField(req.Data, "avatar"), nil))
		return nil
	case event.ActivityFollow, event.ActivitySub, event.ActivityTip,
		event.ActivityGift, event.ActivityCheer, event.ActivityRaid:
		h.PublishActivity(event.NewActivity(req.Type, platform, user, stringField(req.Data, "details")))
		return nil
	default:
		return fmt.Errorf("unknown simulation type %q", req.Type)
	}
}

// fanOutLocked delivers env to every session, evicting any whose queue is
// full. Callers hold h.mu.
func (h *Hub) fanOutLocked(env event.Envelope) {
	var evicted []*Session
	for s := range h.sessions {
		select {
		case s.ch <- env:
		default:
			evicted = append(evicted, s)
		}
	}
	for _, s := range evicted {
		delete(h.sessions, s)
		s.evict()
		telemetry.IncSessionEvicted()
		telemetry.AddSessions(-1)
		h.logger.Warn("session evicted: queue full", slog.String("session", s.ID))
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
