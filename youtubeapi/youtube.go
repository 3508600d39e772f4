// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API live-chat endpoints. Token persistence lives in the oauth package; this
// package only knows how to mint, refresh and spend access tokens.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-hub/oauth"
)

// Service holds the OAuth2 client configuration for the YouTube connection.
type Service struct {
	conf *oauth2.Config
}

func New(clientID, clientSecret, redirectURI, scopes string) *Service {
	sc := []string{"https://www.googleapis.com/auth/youtube", "https://www.googleapis.com/auth/youtube.readonly"}
	if scopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(scopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			sc = fields
		}
	}
	return &Service{conf: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       sc,
	}}
}

func (s *Service) AuthCodeURL(state string) string {
	return s.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange swaps an authorization code for tokens. The caller stores the
// result in the credential manager.
func (s *Service) Exchange(ctx context.Context, code string) (oauth.Credential, error) {
	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		return oauth.Credential{}, fmt.Errorf("youtube code exchange: %w", err)
	}
	return oauth.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Refresh implements oauth.RefreshFunc for the youtube platform.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (oauth.Credential, error) {
	ts := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return oauth.Credential{}, fmt.Errorf("%w: youtube refresh: %v", oauth.ErrAuthRequired, err)
		}
		return oauth.Credential{}, fmt.Errorf("youtube refresh: %w", err)
	}
	return oauth.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Client builds a YouTube Data API client around an already-valid access
// token. Refresh happens upstream in the credential manager, so the token
// source here is static.
func (s *Service) Client(ctx context.Context, accessToken string) (*yt.Service, error) {
	if accessToken == "" {
		return nil, errors.New("empty access token")
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	return yt.New(httpClient)
}

// Identity describes the connected YouTube channel.
type Identity struct {
	ChannelID string
	Title     string
	AvatarURL string
}

// GetIdentity fetches the authenticated user's own channel.
func GetIdentity(ctx context.Context, svc *yt.Service) (*Identity, error) {
	res, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube channels.list: %w", err)
	}
	if len(res.Items) == 0 {
		return nil, errors.New("no channel for authenticated user")
	}
	ch := res.Items[0]
	id := &Identity{ChannelID: ch.Id, Title: ch.Snippet.Title}
	if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
		id.AvatarURL = ch.Snippet.Thumbnails.Default.Url
	}
	return id, nil
}

// FindActiveLiveChatID locates the live chat attached to the user's currently
// active broadcast. Returns an empty string when nothing is live.
func FindActiveLiveChatID(ctx context.Context, svc *yt.Service) (string, error) {
	res, err := svc.LiveBroadcasts.List([]string{"snippet"}).BroadcastStatus("active").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube liveBroadcasts.list: %w", err)
	}
	for _, b := range res.Items {
		if b.Snippet != nil && b.Snippet.LiveChatId != "" {
			return b.Snippet.LiveChatId, nil
		}
	}
	return "", nil
}

// UpdateActiveBroadcastTitle renames the user's currently active broadcast.
// Returns false without error when nothing is live. Category changes live on
// the video resource, not the broadcast, so only the title is touched here.
func UpdateActiveBroadcastTitle(ctx context.Context, svc *yt.Service, title string) (bool, error) {
	res, err := svc.LiveBroadcasts.List([]string{"id", "snippet"}).BroadcastStatus("active").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("youtube liveBroadcasts.list: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return false, nil
	}
	b := res.Items[0]
	b.Snippet.Title = title
	if _, err := svc.LiveBroadcasts.Update([]string{"snippet"}, b).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("youtube liveBroadcasts.update: %w", err)
	}
	return true, nil
}

// ChatPage is one page of live chat messages plus the server-directed paging
// and polling hints.
type ChatPage struct {
	Messages      []*yt.LiveChatMessage
	NextPageToken string
	PollAfterMS   int64
}

// ListMessages fetches a page of live chat messages.
func ListMessages(ctx context.Context, svc *yt.Service, liveChatID, pageToken string) (*ChatPage, error) {
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube liveChatMessages.list: %w", err)
	}
	return &ChatPage{
		Messages:      res.Items,
		NextPageToken: res.NextPageToken,
		PollAfterMS:   res.PollingIntervalMillis,
	}, nil
}

// InsertMessage posts a text message into the live chat.
func InsertMessage(ctx context.Context, svc *yt.Service, liveChatID, text string) error {
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: liveChatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	if _, err := svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("youtube liveChatMessages.insert: %w", err)
	}
	return nil
}
