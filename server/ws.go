package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/hub"
	"github.com/onnwee/stream-hub/telemetry"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPongTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxFrameSize   = 64 << 10
	wsRequestTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Overlay pages load from arbitrary origins; origin policy is handled
	// at the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient serializes writes to one websocket connection. Both the hub
// fan-out pump and request error replies write, so a mutex guards the conn.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(env event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(env)
}

func (c *wsClient) sendError(code, msg string) {
	env := event.MustEnvelope(event.TypeError, event.ErrorPayload{Code: code, Message: msg})
	if err := c.send(env); err != nil {
		slog.Debug("error reply not delivered", slog.Any("err", err))
	}
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsClient) closeWith(code int, reason string) {
	c.mu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.mu.Unlock()
	_ = c.conn.Close()
}

// HandleWS upgrades the connection, subscribes it to the hub, and runs the
// read loop until the consumer goes away. The first frame the consumer
// receives is always the snapshot.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	c := &wsClient{conn: conn}
	sess := h.hub.Subscribe()
	logger := telemetry.LoggerWithCorr(r.Context())
	logger.Info("consumer connected", slog.String("session", sess.ID), slog.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.writePump(ctx, c, sess)

	conn.SetReadLimit(wsMaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(ctx, c, data)
	}

	h.hub.Unsubscribe(sess)
	_ = conn.Close()
	logger.Info("consumer disconnected", slog.String("session", sess.ID))
}

// writePump drains the session queue onto the wire and keeps the connection
// alive with pings. An evicted session gets a close frame so the consumer
// knows to reconnect rather than wait.
func (h *Handlers) writePump(ctx context.Context, c *wsClient, sess *hub.Session) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			// Done also fires on a voluntary unsubscribe after the read loop
			// ends; only an evicted session earns the policy close frame.
			if sess.Evicted() {
				c.closeWith(websocket.ClosePolicyViolation, "queue overflow")
			} else {
				_ = c.conn.Close()
			}
			return
		case env := <-sess.Events():
			if err := c.send(env); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ping.C:
			if err := c.ping(); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// dispatch decodes one consumer frame and routes it. A bad frame earns an
// error envelope; the session stays up.
func (h *Handlers) dispatch(ctx context.Context, c *wsClient, data []byte) {
	typ, req, err := event.ParseRequest(data)
	if err != nil {
		c.sendError("bad-request", err.Error())
		return
	}
	switch m := req.(type) {
	case event.SendMessageRequest:
		rctx, cancel := context.WithTimeout(ctx, wsRequestTimeout)
		defer cancel()
		outcomes, err := h.router.Route(rctx, m.Platform, m.Text)
		if err != nil {
			c.sendError("bad-request", err.Error())
			return
		}
		for _, o := range outcomes {
			if !o.OK() {
				c.sendError("send-failed", fmt.Sprintf("%s: %v", o.Platform, o.Err))
			}
		}
	case event.WidgetActionRequest:
		if _, err := h.widgets.Apply(m.ActionType, m.Payload); err != nil {
			c.sendError("widget-rejected", err.Error())
		}
	case event.SimulateRequest:
		if err := h.hub.Simulate(m); err != nil {
			c.sendError("bad-request", err.Error())
		}
	default:
		c.sendError("bad-request", fmt.Sprintf("unhandled request type %q", typ))
	}
}
