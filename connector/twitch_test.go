package connector

import (
	"sync"
	"testing"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-hub/event"
)

type capturePub struct {
	mu   sync.Mutex
	msgs []event.Message
	acts []event.ActivityEvent
}

func (p *capturePub) PublishMessage(msg event.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *capturePub) PublishActivity(ev event.ActivityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acts = append(p.acts, ev)
}

func newTestTwitch(pub *capturePub) *TwitchConnector {
	return NewTwitchConnector("cid", "somechannel", nil, pub)
}

func TestTwitchPrivateMessageNormalization(t *testing.T) {
	pub := &capturePub{}
	c := newTestTwitch(pub)

	c.handlePrivateMessage(twitchirc.PrivateMessage{
		User: twitchirc.User{
			Name:        "viewer1",
			DisplayName: "Viewer1",
			Color:       "#FF0000",
		},
		Message: "Kappa hello",
		Emotes: []*twitchirc.Emote{
			{Name: "Kappa", ID: "25", Positions: []twitchirc.EmotePosition{{Start: 0, End: 4}}},
		},
	})

	if len(pub.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(pub.msgs))
	}
	m := pub.msgs[0]
	if m.Platform != event.Twitch || m.User != "Viewer1" || m.Text != "Kappa hello" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Color != "#FF0000" {
		t.Errorf("color = %q", m.Color)
	}
	if len(m.Emotes) != 1 || m.Emotes[0].EmoteID != "25" || m.Emotes[0].EndIndex != 4 {
		t.Errorf("unexpected emotes: %+v", m.Emotes)
	}
	if m.ID == "" || m.Timestamp.IsZero() {
		t.Error("message missing id or timestamp")
	}
}

func TestTwitchDefaultColor(t *testing.T) {
	pub := &capturePub{}
	c := newTestTwitch(pub)

	c.handlePrivateMessage(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "viewer1"},
		Message: "hi",
	})
	if len(pub.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(pub.msgs))
	}
	if pub.msgs[0].Color != event.DefaultColor {
		t.Errorf("color = %q, want default", pub.msgs[0].Color)
	}
	if pub.msgs[0].User != "viewer1" {
		t.Errorf("user = %q, want login fallback", pub.msgs[0].User)
	}
}

func TestTwitchMalformedDropped(t *testing.T) {
	pub := &capturePub{}
	c := newTestTwitch(pub)

	c.handlePrivateMessage(twitchirc.PrivateMessage{Message: "no user"})
	c.handlePrivateMessage(twitchirc.PrivateMessage{User: twitchirc.User{Name: "x"}})
	if len(pub.msgs) != 0 {
		t.Errorf("malformed messages published: %d", len(pub.msgs))
	}
}

func TestTwitchCheerEmitsActivity(t *testing.T) {
	pub := &capturePub{}
	c := newTestTwitch(pub)

	c.handlePrivateMessage(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "cheerer", DisplayName: "Cheerer"},
		Message: "cheer100 nice",
		Bits:    100,
	})
	if len(pub.msgs) != 1 || len(pub.acts) != 1 {
		t.Fatalf("msgs=%d acts=%d, want 1/1", len(pub.msgs), len(pub.acts))
	}
	if pub.acts[0].Type != event.ActivityCheer || pub.acts[0].Details != "100 bits" {
		t.Errorf("unexpected activity: %+v", pub.acts[0])
	}
}

func TestTwitchUserNoticeMapping(t *testing.T) {
	tests := []struct {
		name     string
		msgID    string
		params   map[string]string
		wantType string
		wantDet  string
	}{
		{"sub", "sub", map[string]string{"msg-param-sub-plan-name": "Tier 1"}, event.ActivitySub, "Tier 1"},
		{"resub", "resub", nil, event.ActivitySub, ""},
		{"subgift", "subgift", map[string]string{"msg-param-recipient-display-name": "Friend"}, event.ActivityGift, "gifted to Friend"},
		{"mystery gift", "submysterygift", map[string]string{"msg-param-mass-gift-count": "5"}, event.ActivityGift, "5 gift subs"},
		{"raid", "raid", map[string]string{"msg-param-viewerCount": "42"}, event.ActivityRaid, "42 viewers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePub{}
			c := newTestTwitch(pub)
			c.handleUserNotice(twitchirc.UserNoticeMessage{
				User:      twitchirc.User{Name: "subscriber", DisplayName: "Subscriber"},
				MsgID:     tt.msgID,
				MsgParams: tt.params,
			})
			if len(pub.acts) != 1 {
				t.Fatalf("activities = %d, want 1", len(pub.acts))
			}
			if pub.acts[0].Type != tt.wantType || pub.acts[0].Details != tt.wantDet {
				t.Errorf("got %+v, want type=%s details=%q", pub.acts[0], tt.wantType, tt.wantDet)
			}
		})
	}
}

func TestTwitchUserNoticeIgnoresOtherKinds(t *testing.T) {
	pub := &capturePub{}
	c := newTestTwitch(pub)
	c.handleUserNotice(twitchirc.UserNoticeMessage{
		User:  twitchirc.User{Name: "mod"},
		MsgID: "announcement",
	})
	if len(pub.acts) != 0 {
		t.Errorf("announcement should not produce activity: %+v", pub.acts)
	}
}
