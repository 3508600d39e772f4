package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-hub/event"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env event.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func writeRequest(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(event.Envelope{Type: typ, Payload: raw}); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func TestWSSnapshotFirst(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)

	got := readEnvelope(t, conn)
	if got.Type != event.TypeSnapshot {
		t.Fatalf("first envelope type = %q, want snapshot", got.Type)
	}
	var snap event.Snapshot
	if err := json.Unmarshal(got.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.History) != 0 {
		t.Fatalf("fresh hub should have empty history, got %d", len(snap.History))
	}
	if _, ok := snap.WidgetState["counter"]; !ok {
		t.Fatal("snapshot missing widget defaults")
	}
}

func TestWSWidgetAction(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	writeRequest(t, conn, event.TypeWidgetAction, event.WidgetActionRequest{
		ActionType: "counter-update",
		Payload:    map[string]any{"count": float64(5)},
	})

	got := readEnvelope(t, conn)
	if got.Type != event.TypeWidgetEvent {
		t.Fatalf("envelope type = %q, want widget-event", got.Type)
	}
	var delta event.WidgetDelta
	if err := json.Unmarshal(got.Payload, &delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.ActionType != "counter-update" {
		t.Fatalf("actionType = %q", delta.ActionType)
	}

	doc := env.widgets.Snapshot()
	counter := doc["counter"].(map[string]any)
	if counter["count"] != float64(5) {
		t.Fatalf("count = %v, want 5", counter["count"])
	}
}

func TestWSWidgetActionRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	writeRequest(t, conn, event.TypeWidgetAction, event.WidgetActionRequest{
		ActionType: "counter-update",
		Payload:    map[string]any{"count": 1.5},
	})

	got := readEnvelope(t, conn)
	if got.Type != event.TypeError {
		t.Fatalf("envelope type = %q, want error", got.Type)
	}
	var ep event.ErrorPayload
	if err := json.Unmarshal(got.Payload, &ep); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if ep.Code != "widget-rejected" {
		t.Fatalf("code = %q", ep.Code)
	}
}

func TestWSSimulateChat(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	writeRequest(t, conn, event.TypeSimulateEvent, event.SimulateRequest{
		Type: event.TypeChatMessage,
		Data: map[string]any{"text": "hello there"},
	})

	got := readEnvelope(t, conn)
	if got.Type != event.TypeChatMessage {
		t.Fatalf("envelope type = %q, want chat-message", got.Type)
	}
	var msg event.Message
	if err := json.Unmarshal(got.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Text != "hello there" {
		t.Fatalf("text = %q", msg.Text)
	}
	if msg.Platform != event.Twitch {
		t.Fatalf("platform = %q, want default twitch", msg.Platform)
	}
}

func TestWSBadFrameKeepsSessionAlive(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readEnvelope(t, conn)
	if got.Type != event.TypeError {
		t.Fatalf("envelope type = %q, want error", got.Type)
	}

	// The session survives a bad frame.
	writeRequest(t, conn, event.TypeSimulateEvent, event.SimulateRequest{
		Type: event.TypeChatMessage,
		Data: map[string]any{"text": "still here"},
	})
	got = readEnvelope(t, conn)
	if got.Type != event.TypeChatMessage {
		t.Fatalf("envelope type = %q, want chat-message", got.Type)
	}
}

func TestWSSendToDisconnectedPlatform(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	writeRequest(t, conn, event.TypeSendMessage, event.SendMessageRequest{
		Platform: "twitch",
		Text:     "hi",
	})

	got := readEnvelope(t, conn)
	if got.Type != event.TypeError {
		t.Fatalf("envelope type = %q, want error", got.Type)
	}
	var ep event.ErrorPayload
	if err := json.Unmarshal(got.Payload, &ep); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if ep.Code != "send-failed" {
		t.Fatalf("code = %q, want send-failed", ep.Code)
	}
}

func TestWSInvalidSendTarget(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	writeRequest(t, conn, event.TypeSendMessage, event.SendMessageRequest{
		Platform: "myspace",
		Text:     "hi",
	})

	got := readEnvelope(t, conn)
	if got.Type != event.TypeError {
		t.Fatalf("envelope type = %q, want error", got.Type)
	}
	var ep event.ErrorPayload
	if err := json.Unmarshal(got.Payload, &ep); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if ep.Code != "bad-request" {
		t.Fatalf("code = %q, want bad-request", ep.Code)
	}
}

func TestWSUnsubscribeOnClose(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEnvelope(t, conn) // snapshot

	if env.hub.SessionCount() != 1 {
		t.Fatalf("sessions = %d, want 1", env.hub.SessionCount())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not unsubscribed, count = %d", env.hub.SessionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSTwoConsumersBothReceive(t *testing.T) {
	env := newTestEnv(t)
	a := dialWS(t, env)
	b := dialWS(t, env)
	readEnvelope(t, a)
	readEnvelope(t, b)

	env.hub.PublishMessage(event.NewMessage(event.Kick, "viewer", "hi all", "", "", nil))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readEnvelope(t, conn)
		if got.Type != event.TypeChatMessage {
			t.Fatalf("envelope type = %q, want chat-message", got.Type)
		}
	}
}
