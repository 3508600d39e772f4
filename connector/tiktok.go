package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
)

// TikTokConnector reads webcast events from a bridge process over a
// websocket. TikTok has no public chat API; the bridge speaks the native
// webcast protocol and forwards events as JSON frames:
//
//	{"event": "chat"|"gift"|"follow", "data": {...}}
//
// Read-only; TikTok offers no outbound send.
type TikTokConnector struct {
	bridgeURL string
	username  string
	pub       Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	identity *Identity
}

func NewTikTokConnector(bridgeURL, username string, pub Publisher) *TikTokConnector {
	return &TikTokConnector{
		bridgeURL: bridgeURL,
		username:  username,
		pub:       pub,
		logger:    slog.Default().With(slog.String("component", "tiktok")),
	}
}

func (c *TikTokConnector) Platform() event.Platform { return event.TikTok }

func (c *TikTokConnector) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

type tiktokFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type tiktokChat struct {
	UniqueID          string `json:"uniqueId"`
	Comment           string `json:"comment"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

type tiktokGift struct {
	UniqueID    string `json:"uniqueId"`
	GiftName    string `json:"giftName"`
	GiftType    int    `json:"giftType"`
	RepeatCount int    `json:"repeatCount"`
	RepeatEnd   bool   `json:"repeatEnd"`
}

type tiktokFollow struct {
	UniqueID string `json:"uniqueId"`
}

func (c *TikTokConnector) Run(ctx context.Context, ready func()) error {
	header := http.Header{}
	if c.username != "" {
		header.Set("X-TikTok-Username", c.username)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.bridgeURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("tiktok bridge dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("tiktok bridge dial: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("bridge close", slog.Any("err", err))
		}
	}()

	c.mu.Lock()
	c.identity = &Identity{Username: c.username, DisplayName: c.username}
	c.mu.Unlock()
	ready()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tiktok bridge read: %w", err)
		}
		c.handleFrame(data)
	}
}

func (c *TikTokConnector) handleFrame(data []byte) {
	var frame tiktokFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		telemetry.IncDropped("tiktok")
		c.logger.Warn("dropping malformed bridge frame", slog.Any("err", err))
		return
	}

	switch frame.Event {
	case "chat":
		var chat tiktokChat
		if err := json.Unmarshal(frame.Data, &chat); err != nil || chat.UniqueID == "" || chat.Comment == "" {
			telemetry.IncDropped("tiktok")
			return
		}
		c.pub.PublishMessage(event.NewMessage(event.TikTok, chat.UniqueID, chat.Comment, "", chat.ProfilePictureURL, nil))
		telemetry.IncMessage("tiktok")
	case "gift":
		var gift tiktokGift
		if err := json.Unmarshal(frame.Data, &gift); err != nil || gift.UniqueID == "" {
			telemetry.IncDropped("tiktok")
			return
		}
		// Streakable gifts fire once per repeat; only the final frame of a
		// streak counts.
		if gift.GiftType == 1 && !gift.RepeatEnd {
			return
		}
		details := fmt.Sprintf("Sent %s x%d", gift.GiftName, gift.RepeatCount)
		c.pub.PublishActivity(event.NewActivity(event.ActivityGift, event.TikTok, gift.UniqueID, details))
		telemetry.IncActivity("tiktok", event.ActivityGift)
	case "follow":
		var fol tiktokFollow
		if err := json.Unmarshal(frame.Data, &fol); err != nil || fol.UniqueID == "" {
			telemetry.IncDropped("tiktok")
			return
		}
		c.pub.PublishActivity(event.NewActivity(event.ActivityFollow, event.TikTok, fol.UniqueID, ""))
		telemetry.IncActivity("tiktok", event.ActivityFollow)
	default:
		// Likes, shares and room stats are noise for the widget feed.
	}
}
