package hub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/stream-hub/event"
)

type fakeSnapshot struct {
	mu    sync.Mutex
	state map[string]any
}

func (f *fakeSnapshot) Snapshot() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func msg(text string) event.Message {
	return event.NewMessage(event.Twitch, "user", text, "", "", nil)
}

func decodeSnapshot(t *testing.T, env event.Envelope) event.Snapshot {
	t.Helper()
	if env.Type != event.TypeSnapshot {
		t.Fatalf("first envelope type = %s, want snapshot", env.Type)
	}
	var snap event.Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestHistoryCapAndEvictionOrder(t *testing.T) {
	h := New(100, 16, nil)
	for i := 0; i < 150; i++ {
		h.PublishMessage(msg(strconv.Itoa(i)))
	}
	got := h.History()
	if len(got) != 100 {
		t.Fatalf("history length = %d, want 100", len(got))
	}
	// Oldest 50 evicted; remainder in arrival order.
	for i, m := range got {
		if want := strconv.Itoa(i + 50); m.Text != want {
			t.Fatalf("history[%d] = %q, want %q", i, m.Text, want)
		}
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	snap := &fakeSnapshot{state: map[string]any{"counter": map[string]any{"count": float64(3)}}}
	h := New(10, 16, snap)
	h.PublishMessage(msg("before"))

	s := h.Subscribe()
	defer h.Unsubscribe(s)

	env := <-s.Events()
	got := decodeSnapshot(t, env)
	if len(got.History) != 1 || got.History[0].Text != "before" {
		t.Errorf("snapshot history = %+v", got.History)
	}
	if got.WidgetState == nil {
		t.Error("snapshot missing widget state")
	}

	h.PublishMessage(msg("after"))
	live := <-s.Events()
	if live.Type != event.TypeChatMessage {
		t.Errorf("live envelope type = %s", live.Type)
	}
}

func TestSnapshotAtomicity(t *testing.T) {
	h := New(100, 256, nil)

	const total = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			h.PublishMessage(msg(strconv.Itoa(i)))
		}
	}()

	// Subscribe repeatedly while the publisher runs. For every session the
	// first live message must directly follow the snapshot's last message:
	// no gap, no duplicate.
	for k := 0; k < 20; k++ {
		s := h.Subscribe()
		env := <-s.Events()
		snap := decodeSnapshot(t, env)
		last := -1
		if n := len(snap.History); n > 0 {
			var err error
			last, err = strconv.Atoi(snap.History[n-1].Text)
			if err != nil {
				t.Fatalf("bad history text: %v", err)
			}
		}
		if last < total-1 {
			select {
			case live := <-s.Events():
				var m event.Message
				if err := json.Unmarshal(live.Payload, &m); err != nil {
					t.Fatalf("decode live message: %v", err)
				}
				seq, err := strconv.Atoi(m.Text)
				if err != nil {
					t.Fatalf("bad live text: %v", err)
				}
				if seq != last+1 {
					t.Fatalf("snapshot ended at %d but first live message is %d", last, seq)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no live message after snapshot")
			}
		}
		h.Unsubscribe(s)
	}
	<-done
}

func TestSlowConsumerEvicted(t *testing.T) {
	h := New(10, 2, nil)
	s := h.Subscribe()
	// Session never drains; queue holds snapshot + 2 buffered events.
	for i := 0; i < 5; i++ {
		h.PublishMessage(msg(strconv.Itoa(i)))
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("slow session was not evicted")
	}
	if h.SessionCount() != 0 {
		t.Errorf("session count = %d, want 0", h.SessionCount())
	}
	// Eviction must not block other consumers.
	s2 := h.Subscribe()
	defer h.Unsubscribe(s2)
	<-s2.Events()
	h.PublishMessage(msg("x"))
	select {
	case <-s2.Events():
	case <-time.After(time.Second):
		t.Fatal("healthy session starved after eviction")
	}
}

func TestDoneDistinguishesEvictionFromUnsubscribe(t *testing.T) {
	h := New(10, 2, nil)
	evictee := h.Subscribe()
	for i := 0; i < 5; i++ {
		h.PublishMessage(msg(strconv.Itoa(i)))
	}
	select {
	case <-evictee.Done():
	case <-time.After(time.Second):
		t.Fatal("slow session was not evicted")
	}
	if !evictee.Evicted() {
		t.Error("evicted session not marked as evicted")
	}

	s := h.Subscribe()
	h.Unsubscribe(s)
	<-s.Done()
	if s.Evicted() {
		t.Error("voluntary unsubscribe reported as eviction")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(10, 4, nil)
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s)
	if h.SessionCount() != 0 {
		t.Errorf("session count = %d", h.SessionCount())
	}
}

func TestActivityHookRunsOutsideLock(t *testing.T) {
	h := New(10, 4, nil)
	var hooked []event.ActivityEvent
	h.SetActivityHook(func(ev event.ActivityEvent) {
		// Re-entering the hub from the hook must not deadlock; the widget
		// store publishes deltas from exactly this position.
		h.Publish(event.MustEnvelope(event.TypeWidgetEvent, event.WidgetDelta{ActionType: "activity-add"}))
		hooked = append(hooked, ev)
	})

	doneCh := make(chan struct{})
	go func() {
		h.PublishActivity(event.NewActivity(event.ActivityFollow, event.Kick, "fan", ""))
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("PublishActivity deadlocked via activity hook")
	}
	if len(hooked) != 1 || hooked[0].Type != event.ActivityFollow {
		t.Errorf("hooked = %+v", hooked)
	}
}

func TestSimulateChatMessage(t *testing.T) {
	h := New(10, 4, nil)
	s := h.Subscribe()
	defer h.Unsubscribe(s)
	<-s.Events() // snapshot

	err := h.Simulate(event.SimulateRequest{
		Type: event.TypeChatMessage,
		Data: map[string]any{"platform": "kick", "user": "fan", "text": "hi"},
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	env := <-s.Events()
	if env.Type != event.TypeChatMessage {
		t.Fatalf("envelope type = %s", env.Type)
	}
	var m event.Message
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		t.Fatal(err)
	}
	if m.Platform != event.Kick || m.User != "fan" || m.Text != "hi" {
		t.Errorf("unexpected message: %+v", m)
	}
	if len(h.History()) != 1 {
		t.Error("simulated chat should enter history like a real one")
	}
}

func TestSimulateActivityDefaults(t *testing.T) {
	h := New(10, 4, nil)
	var hooked []event.ActivityEvent
	h.SetActivityHook(func(ev event.ActivityEvent) { hooked = append(hooked, ev) })

	if err := h.Simulate(event.SimulateRequest{Type: event.ActivityTip}); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(hooked) != 1 {
		t.Fatalf("hooked = %d, want 1", len(hooked))
	}
	if hooked[0].Platform != event.Twitch || hooked[0].User != "TestUser" {
		t.Errorf("defaults not applied: %+v", hooked[0])
	}
}

func TestSimulateRejectsInvalid(t *testing.T) {
	h := New(10, 4, nil)
	cases := []event.SimulateRequest{
		{Type: "explosion"},
		{Type: event.TypeChatMessage, Data: map[string]any{"platform": "myspace", "text": "hi"}},
		{Type: event.TypeChatMessage, Data: map[string]any{"user": "fan"}},
	}
	for i, req := range cases {
		if err := h.Simulate(req); err == nil {
			t.Errorf("case %d: expected error for %+v", i, req)
		}
	}
	if len(h.History()) != 0 {
		t.Error("invalid simulations must not publish")
	}
}

func TestFanOutOrdering(t *testing.T) {
	h := New(100, 64, nil)
	s := h.Subscribe()
	defer h.Unsubscribe(s)
	<-s.Events()

	for i := 0; i < 50; i++ {
		h.PublishMessage(msg(fmt.Sprintf("%d", i)))
	}
	for i := 0; i < 50; i++ {
		env := <-s.Events()
		var m event.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			t.Fatal(err)
		}
		if m.Text != strconv.Itoa(i) {
			t.Fatalf("out of order: got %s at position %d", m.Text, i)
		}
	}
}
