package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/kickapi"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/twitchapi"
)

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwitchClientID == "" || h.cfg.TwitchRedirectURI == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	st, err := h.newOAuthState("")
	if err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	authURL, err := twitchapi.BuildAuthorizeURL(h.cfg.TwitchClientID, h.cfg.TwitchRedirectURI, h.cfg.TwitchScopes, st)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback handles the OAuth callback from Twitch and stores
// the credential. A waiting connector is restarted immediately.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	if _, ok := h.takeOAuthState(st); !ok {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()
	res, err := twitchapi.ExchangeAuthCode(ctx, h.cfg.TwitchClientID, h.cfg.TwitchClientSecret, code, h.cfg.TwitchRedirectURI)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	cred := oauth.Credential{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Expiry:       oauth.ComputeExpiry(res.ExpiresIn),
	}
	if err := h.creds.Set(event.Twitch, cred); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	h.sup.NotifyCredential(event.Twitch)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "platform": "twitch", "scopes": res.Scope, "expires_in": res.ExpiresIn}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// HandleKickOAuthStart initiates the Kick OAuth flow. Kick mandates PKCE, so
// the code verifier is bound to the state token until the callback arrives.
func (h *Handlers) HandleKickOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.cfg.KickClientID == "" || h.cfg.KickRedirectURI == "" {
		http.Error(w, "oauth not configured (need KICK_CLIENT_ID + KICK_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	verifier, err := kickapi.NewCodeVerifier()
	if err != nil {
		http.Error(w, "verifier gen error", 500)
		return
	}
	st, err := h.newOAuthState(verifier)
	if err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	authURL, err := kickapi.BuildAuthorizeURL(h.cfg.KickClientID, h.cfg.KickRedirectURI, h.cfg.KickScopes, st, kickapi.ChallengeS256(verifier))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleKickOAuthCallback handles the OAuth callback from Kick and stores the
// credential.
func (h *Handlers) HandleKickOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	pending, ok := h.takeOAuthState(st)
	if !ok || pending.verifier == "" {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()
	res, err := kickapi.ExchangeAuthCode(ctx, h.cfg.KickClientID, h.cfg.KickClientSecret, code, h.cfg.KickRedirectURI, pending.verifier)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	cred := oauth.Credential{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Expiry:       oauth.ComputeExpiry(res.ExpiresIn),
	}
	if err := h.creds.Set(event.Kick, cred); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	h.sup.NotifyCredential(event.Kick)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "platform": "kick", "scopes": strings.Fields(res.Scope), "expires_in": res.ExpiresIn}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// HandleYouTubeOAuthStart initiates the YouTube OAuth flow.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.yt == nil {
		http.Error(w, "youtube oauth not configured", 400)
		return
	}
	st, err := h.newOAuthState("")
	if err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	http.Redirect(w, r, h.yt.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback handles the OAuth callback from YouTube and
// stores the credential.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.yt == nil {
		http.Error(w, "youtube oauth not configured", 400)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	if _, ok := h.takeOAuthState(st); !ok {
		http.Error(w, "invalid state", 400)
		return
	}
	cred, err := h.yt.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if err := h.creds.Set(event.YouTube, cred); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	h.sup.NotifyCredential(event.YouTube)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "platform": "youtube"}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// HandleDisconnect returns a handler that revokes the stored credential for
// platform and tears down its connector.
func (h *Handlers) HandleDisconnect(platform event.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := h.creds.Revoke(platform); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		h.sup.NotifyCredential(platform)
		slog.Info("platform disconnected", slog.String("platform", string(platform)))
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"status": "disconnected", "platform": platform}); err != nil {
			slog.Warn("failed to encode JSON response", slog.Any("err", err))
		}
	}
}
