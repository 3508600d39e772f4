// Package config loads environment variables and provides a typed Config used
// across the service. It applies sensible defaults so the binary can run
// locally with minimal setup; platform connectors whose credentials are
// missing simply stay disabled.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// HTTP
	HTTPAddr string

	// Storage
	DataDir        string
	CredentialFile string
	WidgetFile     string

	// Twitch
	TwitchChannel      string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// Kick
	KickChannel      string
	KickChatroomID   int
	KickClientID     string
	KickClientSecret string
	KickRedirectURI  string
	KickScopes       string

	// YouTube
	YTClientID     string
	YTClientSecret string
	YTRedirectURI  string
	YTScopes       string

	// TikTok (webcast bridge; the native wire format is opaque to us)
	TikTokUsername  string
	TikTokBridgeURL string

	// Hub tuning
	HistorySize     int
	SessionQueue    int
	PersistDebounce time.Duration
}

// Load reads environment variables and applies defaults. Missing optional
// variables disable features (e.g. a platform without credentials never
// starts a connector).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.CredentialFile = filepath.Join(cfg.DataDir, "tokens.json")
	cfg.WidgetFile = filepath.Join(cfg.DataDir, "widgets.json")

	// Twitch
	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		cfg.TwitchScopes = "chat:read chat:edit channel:read:subscriptions"
	}

	// Kick
	cfg.KickChannel = os.Getenv("KICK_CHANNEL")
	if v := os.Getenv("KICK_CHATROOM_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid KICK_CHATROOM_ID: %w", err)
		}
		cfg.KickChatroomID = id
	}
	cfg.KickClientID = os.Getenv("KICK_CLIENT_ID")
	cfg.KickClientSecret = os.Getenv("KICK_CLIENT_SECRET")
	cfg.KickRedirectURI = os.Getenv("KICK_REDIRECT_URI")
	cfg.KickScopes = os.Getenv("KICK_SCOPES")
	if cfg.KickScopes == "" {
		cfg.KickScopes = "user:read channel:read chat:write events:subscribe"
	}

	// YouTube
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRedirectURI = os.Getenv("YT_REDIRECT_URI")
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly https://www.googleapis.com/auth/youtube.force-ssl"
	}

	// TikTok
	cfg.TikTokUsername = os.Getenv("TIKTOK_USERNAME")
	cfg.TikTokBridgeURL = os.Getenv("TIKTOK_BRIDGE_URL")

	// Hub
	cfg.HistorySize = envInt("HISTORY_SIZE", 100)
	cfg.SessionQueue = envInt("SESSION_QUEUE", 256)
	cfg.PersistDebounce = time.Second
	if v := os.Getenv("WIDGET_PERSIST_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid WIDGET_PERSIST_DEBOUNCE: %q", v)
		}
		cfg.PersistDebounce = d
	}

	return cfg, nil
}

// TwitchEnabled reports whether enough configuration exists to run the
// Twitch connector. The bot identity comes from the stored token, so the
// channel to join is the only requirement.
func (c *Config) TwitchEnabled() bool {
	return c.TwitchChannel != ""
}

// KickEnabled reports whether the Kick connector can start.
func (c *Config) KickEnabled() bool {
	return c.KickChannel != "" || c.KickChatroomID > 0
}

// YouTubeEnabled reports whether the YouTube connector can start.
func (c *Config) YouTubeEnabled() bool {
	return c.YTClientID != "" && c.YTClientSecret != ""
}

// TikTokEnabled reports whether the TikTok connector can start.
func (c *Config) TikTokEnabled() bool {
	return c.TikTokUsername != "" && c.TikTokBridgeURL != ""
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
