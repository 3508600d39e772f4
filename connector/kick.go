package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/kickapi"
	"github.com/onnwee/stream-hub/telemetry"
)

// KickChannelAPIURL is the unauthenticated channel lookup endpoint used to
// resolve a slug to its chatroom id. Overridable in tests.
var KickChannelAPIURL = "https://kick.com/api/v2/channels"

// KickConnector reads a channel's chat over the Kick websocket. Outbound
// sends go through the public API with the managed bearer token.
type KickConnector struct {
	slug       string
	chatroomID int
	tokens     TokenSource
	pub        Publisher
	logger     *slog.Logger

	mu       sync.Mutex
	identity *Identity
}

// NewKickConnector creates a connector for one channel. chatroomID may be 0,
// in which case it is resolved from the slug on connect.
func NewKickConnector(slug string, chatroomID int, tokens TokenSource, pub Publisher) *KickConnector {
	return &KickConnector{
		slug:       slug,
		chatroomID: chatroomID,
		tokens:     tokens,
		pub:        pub,
		logger:     slog.Default().With(slog.String("component", "kick")),
	}
}

func (c *KickConnector) Platform() event.Platform { return event.Kick }

func (c *KickConnector) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *KickConnector) Run(ctx context.Context, ready func()) error {
	chatroomID := c.chatroomID
	if chatroomID == 0 {
		id, err := resolveKickChatroomID(ctx, c.slug)
		if err != nil {
			return fmt.Errorf("kick channel resolve: %w", err)
		}
		chatroomID = id
		c.chatroomID = id
	}

	// Identity is best-effort: chat reads work without a credential, sends
	// don't.
	if tok, err := c.tokens.Token(ctx, event.Kick); err == nil {
		if self, err := kickapi.GetSelf(ctx, tok); err == nil {
			c.mu.Lock()
			c.identity = &Identity{Username: self.Name, DisplayName: self.Name, AvatarURL: self.AvatarURL}
			c.mu.Unlock()
		} else {
			c.logger.Warn("kick identity lookup failed", slog.Any("err", err))
		}
	}

	client, err := kickchat.NewClient()
	if err != nil {
		return fmt.Errorf("kick client: %w", err)
	}
	defer client.Close()

	if err := client.JoinChannelByID(chatroomID); err != nil {
		return fmt.Errorf("kick join chatroom %d: %w", chatroomID, err)
	}
	ready()

	messages := client.ListenForMessages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("kick: message stream closed")
			}
			c.handleMessage(msg)
		}
	}
}

// Send posts into the broadcaster's own chatroom via the public API.
func (c *KickConnector) Send(ctx context.Context, text string) error {
	tok, err := c.tokens.Token(ctx, event.Kick)
	if err != nil {
		return fmt.Errorf("kick token: %w", err)
	}
	return kickapi.SendChatMessage(ctx, tok, text)
}

func (c *KickConnector) handleMessage(msg kickchat.ChatMessage) {
	if msg.Content == "" || msg.Sender.Username == "" {
		telemetry.IncDropped("kick")
		c.logger.Warn("dropping malformed kick message", slog.Int("chatroomId", msg.ChatroomID))
		return
	}
	c.pub.PublishMessage(event.NewMessage(event.Kick, msg.Sender.Username, msg.Content, "", "", nil))
	telemetry.IncMessage("kick")
}

type kickChannelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

func resolveKickChatroomID(ctx context.Context, slug string) (int, error) {
	if slug == "" {
		return 0, errors.New("empty channel slug")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, KickChannelAPIURL+"/"+slug, nil)
	if err != nil {
		return 0, err
	}
	// Browser-shaped headers; the endpoint sits behind CloudFlare.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://kick.com/")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("kick channel api returned %d: %s", resp.StatusCode, string(body))
	}
	var info kickChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, err
	}
	if info.Chatroom.ID == 0 {
		return 0, fmt.Errorf("channel %q has no chatroom", slug)
	}
	return info.Chatroom.ID, nil
}
