// Package event defines the canonical types every platform payload is
// normalized into before it reaches the broadcast hub, plus the JSON envelope
// protocol spoken to consumer sessions.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies the originating streaming service.
type Platform string

const (
	Twitch  Platform = "twitch"
	Kick    Platform = "kick"
	YouTube Platform = "youtube"
	TikTok  Platform = "tiktok"
)

// Platforms lists every platform the hub can connect to.
var Platforms = []Platform{Twitch, Kick, YouTube, TikTok}

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	switch p {
	case Twitch, Kick, YouTube, TikTok:
		return true
	}
	return false
}

// Activity event types.
const (
	ActivityFollow = "follow"
	ActivitySub    = "sub"
	ActivityTip    = "tip"
	ActivityGift   = "gift"
	ActivityCheer  = "cheer"
	ActivityRaid   = "raid"
)

// EmoteSpan marks an emote occurrence inside a message text by rune indexes.
type EmoteSpan struct {
	EmoteID    string `json:"emoteId"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

// Message is a single normalized chat line. Immutable once created; retained
// only in the hub's bounded history buffer.
type Message struct {
	ID        string      `json:"id"`
	Platform  Platform    `json:"platform"`
	User      string      `json:"user"`
	Text      string      `json:"text"`
	Color     string      `json:"color"`
	Avatar    string      `json:"avatar,omitempty"`
	Emotes    []EmoteSpan `json:"emotes,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DefaultColor is used when the platform supplies no display color.
const DefaultColor = "#888888"

// NewMessage builds a Message with a fresh id and arrival timestamp.
func NewMessage(platform Platform, user, text, color, avatar string, emotes []EmoteSpan) Message {
	if color == "" {
		color = DefaultColor
	}
	return Message{
		ID:        NewID(),
		Platform:  platform,
		User:      user,
		Text:      text,
		Color:     color,
		Avatar:    avatar,
		Emotes:    emotes,
		Timestamp: time.Now().UTC(),
	}
}

// ActivityEvent is a normalized community or monetization signal
// (follow, sub, tip, gift, cheer, raid).
type ActivityEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Platform  Platform  `json:"platform"`
	User      string    `json:"user"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// NewActivity builds an ActivityEvent with a fresh id and arrival timestamp.
func NewActivity(typ string, platform Platform, user, details string) ActivityEvent {
	return ActivityEvent{
		ID:        NewID(),
		Type:      typ,
		Platform:  platform,
		User:      user,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewID returns a unique, generation-ordered event id. UUIDv7 embeds a
// millisecond timestamp so ids sort in creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4.
		return uuid.New().String()
	}
	return id.String()
}
