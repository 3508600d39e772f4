package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"data_dir", func() error {
			info, err := os.Stat(h.cfg.DataDir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", h.cfg.DataDir)
			}
			return nil
		}},
		{"widget_store", func() error {
			if len(h.widgets.Snapshot()) == 0 {
				return fmt.Errorf("widget document empty")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports connector states, session count, and uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"sessions":       h.hub.SessionCount(),
		"history":        len(h.hub.History()),
		"connectors":     h.sup.States(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// platformAuthStatus is one platform's entry in the auth status response.
type platformAuthStatus struct {
	Authorized bool   `json:"authorized"`
	Connected  bool   `json:"connected"`
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// HandleAuthStatus reports, per platform, whether a credential is stored and
// whether the connector is currently live.
func (h *Handlers) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	resp := make(map[string]platformAuthStatus)
	for _, p := range h.sup.Platforms() {
		entry := platformAuthStatus{}
		if _, ok := h.creds.Get(p); ok {
			entry.Authorized = true
		}
		if st, ok := h.sup.Status(p); ok {
			entry.Connected = st.Connected
			entry.Username = st.Username
			entry.AvatarURL = st.AvatarURL
		}
		resp[string(p)] = entry
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
