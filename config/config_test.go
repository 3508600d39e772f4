package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DATA_DIR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.CredentialFile != "data/tokens.json" {
		t.Errorf("CredentialFile = %q, want data/tokens.json", cfg.CredentialFile)
	}
	if cfg.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.HistorySize)
	}
	if cfg.PersistDebounce != time.Second {
		t.Errorf("PersistDebounce = %v, want 1s", cfg.PersistDebounce)
	}
}

func TestLoadInvalidChatroomID(t *testing.T) {
	t.Setenv("KICK_CHATROOM_ID", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid KICK_CHATROOM_ID")
	}
}

func TestLoadInvalidDebounce(t *testing.T) {
	t.Setenv("WIDGET_PERSIST_DEBOUNCE", "-5s")
	if _, err := Load(); err == nil {
		t.Error("expected error for negative WIDGET_PERSIST_DEBOUNCE")
	}
}

func TestPlatformEnabled(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("KICK_CHANNEL", "")
	t.Setenv("KICK_CHATROOM_ID", "12345")
	t.Setenv("TIKTOK_USERNAME", "someone")
	t.Setenv("TIKTOK_BRIDGE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.TwitchEnabled() {
		t.Error("expected Twitch enabled with channel alone")
	}
	if !cfg.KickEnabled() {
		t.Error("expected Kick enabled via chatroom id")
	}
	if cfg.YouTubeEnabled() {
		t.Error("expected YouTube disabled without client credentials")
	}
	if cfg.TikTokEnabled() {
		t.Error("expected TikTok disabled without bridge URL")
	}
}
