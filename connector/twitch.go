package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
	"github.com/onnwee/stream-hub/twitchapi"
)

// TokenSource is the slice of the credential manager connectors use to obtain
// a fresh access token. *oauth.Manager satisfies it.
type TokenSource interface {
	Token(ctx context.Context, platform event.Platform) (string, error)
}

// TwitchConnector reads the broadcaster's chat over IRC and can speak into it
// with Say.
type TwitchConnector struct {
	clientID string
	channel  string
	tokens   TokenSource
	pub      Publisher
	logger   *slog.Logger

	mu       sync.Mutex
	client   *twitchirc.Client
	identity *Identity
}

func NewTwitchConnector(clientID, channel string, tokens TokenSource, pub Publisher) *TwitchConnector {
	return &TwitchConnector{
		clientID: clientID,
		channel:  strings.ToLower(strings.TrimPrefix(channel, "#")),
		tokens:   tokens,
		pub:      pub,
		logger:   slog.Default().With(slog.String("component", "twitch")),
	}
}

func (c *TwitchConnector) Platform() event.Platform { return event.Twitch }

func (c *TwitchConnector) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *TwitchConnector) Run(ctx context.Context, ready func()) error {
	tok, err := c.tokens.Token(ctx, event.Twitch)
	if err != nil {
		return fmt.Errorf("twitch token: %w", err)
	}

	self, err := twitchapi.GetSelf(ctx, c.clientID, tok)
	if err != nil {
		return fmt.Errorf("twitch identity: %w", err)
	}
	channel := c.channel
	if channel == "" {
		channel = self.Login
	}

	client := twitchirc.NewClient(self.Login, "oauth:"+tok)
	c.mu.Lock()
	c.client = client
	c.identity = &Identity{Username: self.Login, DisplayName: self.DisplayName, AvatarURL: self.AvatarURL}
	c.mu.Unlock()

	client.OnConnect(func() {
		ready()
	})
	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		c.handlePrivateMessage(msg)
	})
	client.OnUserNoticeMessage(func(msg twitchirc.UserNoticeMessage) {
		c.handleUserNotice(msg)
	})

	client.Join(channel)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Disconnect()
		case <-done:
		}
	}()

	err = client.Connect()
	c.mu.Lock()
	c.client = nil
	c.mu.Unlock()
	if ctx.Err() != nil || errors.Is(err, twitchirc.ErrClientDisconnected) {
		return nil
	}
	return err
}

// Send speaks into the broadcaster's channel over the live IRC connection.
func (c *TwitchConnector) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	client := c.client
	channel := c.channel
	if channel == "" && c.identity != nil {
		channel = c.identity.Username
	}
	c.mu.Unlock()
	if client == nil {
		return errors.New("twitch: not connected")
	}
	client.Say(channel, text)
	return nil
}

func (c *TwitchConnector) handlePrivateMessage(msg twitchirc.PrivateMessage) {
	if msg.Message == "" || msg.User.Name == "" {
		telemetry.IncDropped("twitch")
		c.logger.Warn("dropping malformed PRIVMSG")
		return
	}
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	var emotes []event.EmoteSpan
	for _, e := range msg.Emotes {
		for _, pos := range e.Positions {
			emotes = append(emotes, event.EmoteSpan{
				EmoteID:    e.ID,
				StartIndex: pos.Start,
				EndIndex:   pos.End,
			})
		}
	}
	c.pub.PublishMessage(event.NewMessage(event.Twitch, name, msg.Message, msg.User.Color, "", emotes))
	telemetry.IncMessage("twitch")

	if msg.Bits > 0 {
		ev := event.NewActivity(event.ActivityCheer, event.Twitch, name, fmt.Sprintf("%d bits", msg.Bits))
		c.pub.PublishActivity(ev)
		telemetry.IncActivity("twitch", event.ActivityCheer)
	}
}

func (c *TwitchConnector) handleUserNotice(msg twitchirc.UserNoticeMessage) {
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	if name == "" {
		telemetry.IncDropped("twitch")
		c.logger.Warn("dropping malformed USERNOTICE", slog.String("msgId", msg.MsgID))
		return
	}

	var typ, details string
	switch msg.MsgID {
	case "sub", "resub":
		typ = event.ActivitySub
		details = msg.MsgParams["msg-param-sub-plan-name"]
	case "subgift", "anonsubgift", "submysterygift":
		typ = event.ActivityGift
		if n := msg.MsgParams["msg-param-mass-gift-count"]; n != "" {
			details = n + " gift subs"
		} else if to := msg.MsgParams["msg-param-recipient-display-name"]; to != "" {
			details = "gifted to " + to
		}
	case "raid":
		typ = event.ActivityRaid
		if n := msg.MsgParams["msg-param-viewerCount"]; n != "" {
			details = n + " viewers"
		}
	default:
		// Other notice kinds (announcements, rituals) are not activity.
		return
	}
	c.pub.PublishActivity(event.NewActivity(typ, event.Twitch, name, details))
	telemetry.IncActivity("twitch", typ)
}
