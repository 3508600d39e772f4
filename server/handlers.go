// Package server exposes the HTTP API: the consumer websocket, OAuth flows
// for the chat platforms, health, status, and metrics. It includes permissive
// CORS for development and injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/onnwee/stream-hub/config"
	"github.com/onnwee/stream-hub/connector"
	"github.com/onnwee/stream-hub/hub"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/router"
	"github.com/onnwee/stream-hub/widget"
	"github.com/onnwee/stream-hub/youtubeapi"
)

const (
	// Maximum number of in-flight OAuth states to keep in memory
	maxOAuthStates = 10000

	oauthStateTTL = 10 * time.Minute
)

// oauthState is one pending authorization: when it expires and, for PKCE
// flows, the code verifier bound to it.
type oauthState struct {
	expiry   time.Time
	verifier string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg     *config.Config
	hub     *hub.Hub
	widgets *widget.Store
	router  *router.Router
	sup     *connector.Supervisor
	creds   *oauth.Manager
	yt      *youtubeapi.Service
	started time.Time

	stateMu    sync.Mutex
	stateStore map[string]oauthState
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// yt may be nil when YouTube OAuth is not configured.
func NewHandlers(cfg *config.Config, h *hub.Hub, widgets *widget.Store, rt *router.Router,
	sup *connector.Supervisor, creds *oauth.Manager, yt *youtubeapi.Service) *Handlers {
	return &Handlers{
		cfg:        cfg,
		hub:        h,
		widgets:    widgets,
		router:     rt,
		sup:        sup,
		creds:      creds,
		yt:         yt,
		started:    time.Now(),
		stateStore: make(map[string]oauthState),
	}
}

// newOAuthState generates an unguessable state token and registers it.
func (h *Handlers) newOAuthState(verifier string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, oauthState{expiry: time.Now().Add(oauthStateTTL), verifier: verifier})
	return st, nil
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, s oauthState) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// If we're still over the limit after cleanup, refuse to add more.
	// The OAuth flow fails, which beats a memory exhaustion attack.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = s
}

// takeOAuthState consumes a state token. It returns false for unknown or
// expired states; a valid state can be used exactly once.
func (h *Handlers) takeOAuthState(state string) (oauthState, bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	s, ok := h.stateStore[state]
	if !ok {
		return oauthState{}, false
	}
	delete(h.stateStore, state)
	if time.Now().After(s.expiry) {
		return oauthState{}, false
	}
	return s, true
}

// cleanExpiredStates removes expired OAuth states from the store.
// This must be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, s := range h.stateStore {
		if now.After(s.expiry) {
			delete(h.stateStore, state)
		}
	}
}
