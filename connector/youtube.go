package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
	"github.com/onnwee/stream-hub/youtubeapi"
)

const defaultYouTubePoll = 3 * time.Second

// YouTubeConnector polls the live chat of the account's active broadcast.
// There is no push channel in the Data API, so "connected" means the poll
// loop is running against a located live chat.
type YouTubeConnector struct {
	svc    *youtubeapi.Service
	tokens TokenSource
	pub    Publisher
	logger *slog.Logger

	mu         sync.Mutex
	identity   *Identity
	liveChatID string
}

func NewYouTubeConnector(svc *youtubeapi.Service, tokens TokenSource, pub Publisher) *YouTubeConnector {
	return &YouTubeConnector{
		svc:    svc,
		tokens: tokens,
		pub:    pub,
		logger: slog.Default().With(slog.String("component", "youtube")),
	}
}

func (c *YouTubeConnector) Platform() event.Platform { return event.YouTube }

func (c *YouTubeConnector) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *YouTubeConnector) Run(ctx context.Context, ready func()) error {
	client, err := c.client(ctx)
	if err != nil {
		return err
	}

	id, err := youtubeapi.GetIdentity(ctx, client)
	if err != nil {
		return fmt.Errorf("youtube identity: %w", err)
	}
	c.mu.Lock()
	c.identity = &Identity{Username: id.ChannelID, DisplayName: id.Title, AvatarURL: id.AvatarURL}
	c.mu.Unlock()

	liveChatID, err := youtubeapi.FindActiveLiveChatID(ctx, client)
	if err != nil {
		return fmt.Errorf("youtube broadcast lookup: %w", err)
	}
	if liveChatID == "" {
		return errors.New("youtube: no active broadcast")
	}
	c.mu.Lock()
	c.liveChatID = liveChatID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.liveChatID = ""
		c.mu.Unlock()
	}()

	// The first page replays recent history; consume it for the page token
	// only so restarts don't re-broadcast old chat.
	page, err := youtubeapi.ListMessages(ctx, client, liveChatID, "")
	if err != nil {
		return fmt.Errorf("youtube chat prime: %w", err)
	}
	pageToken := page.NextPageToken
	ready()

	for {
		wait := defaultYouTubePoll
		if page.PollAfterMS > 0 {
			wait = time.Duration(page.PollAfterMS) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		// Tokens rotate underneath long streams, so rebuild the client from
		// the manager each poll.
		client, err = c.client(ctx)
		if err != nil {
			return err
		}
		page, err = youtubeapi.ListMessages(ctx, client, liveChatID, pageToken)
		if err != nil {
			return fmt.Errorf("youtube chat poll: %w", err)
		}
		pageToken = page.NextPageToken
		for _, item := range page.Messages {
			c.handleItem(item)
		}
	}
}

// Send posts into the active broadcast's live chat.
func (c *YouTubeConnector) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	liveChatID := c.liveChatID
	c.mu.Unlock()
	if liveChatID == "" {
		return errors.New("youtube: no active live chat")
	}
	client, err := c.client(ctx)
	if err != nil {
		return err
	}
	return youtubeapi.InsertMessage(ctx, client, liveChatID, text)
}

func (c *YouTubeConnector) client(ctx context.Context) (*yt.Service, error) {
	tok, err := c.tokens.Token(ctx, event.YouTube)
	if err != nil {
		return nil, fmt.Errorf("youtube token: %w", err)
	}
	return c.svc.Client(ctx, tok)
}

func (c *YouTubeConnector) handleItem(item *yt.LiveChatMessage) {
	if item == nil || item.Snippet == nil || item.AuthorDetails == nil {
		telemetry.IncDropped("youtube")
		c.logger.Warn("dropping malformed live chat item")
		return
	}
	author := item.AuthorDetails.DisplayName
	avatar := item.AuthorDetails.ProfileImageUrl

	switch item.Snippet.Type {
	case "textMessageEvent":
		if item.Snippet.TextMessageDetails == nil || author == "" {
			telemetry.IncDropped("youtube")
			return
		}
		c.pub.PublishMessage(event.NewMessage(event.YouTube, author, item.Snippet.TextMessageDetails.MessageText, "", avatar, nil))
		telemetry.IncMessage("youtube")
	case "superChatEvent":
		details := ""
		if item.Snippet.SuperChatDetails != nil {
			details = item.Snippet.SuperChatDetails.AmountDisplayString
		}
		c.pub.PublishActivity(event.NewActivity(event.ActivityTip, event.YouTube, author, details))
		telemetry.IncActivity("youtube", event.ActivityTip)
	case "newSponsorEvent":
		c.pub.PublishActivity(event.NewActivity(event.ActivitySub, event.YouTube, author, "new member"))
		telemetry.IncActivity("youtube", event.ActivitySub)
	case "membershipGiftingEvent":
		c.pub.PublishActivity(event.NewActivity(event.ActivityGift, event.YouTube, author, "gifted memberships"))
		telemetry.IncActivity("youtube", event.ActivityGift)
	default:
		// System messages (tombstones, deletions) are ignored.
	}
}
