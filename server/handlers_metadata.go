package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
	"github.com/onnwee/stream-hub/twitchapi"
	"github.com/onnwee/stream-hub/youtubeapi"
)

// Per-platform status strings the dashboard renders verbatim.
const (
	metadataSuccess      = "Success"
	metadataNoStream     = "No Active Stream"
	metadataNotSupported = "Not Supported"
)

// HandleSearchGame proxies a Twitch category search so the dashboard can
// resolve a game name to the id the channel update needs. An unauthorized
// Twitch account yields an empty list rather than an error.
func (h *Handlers) HandleSearchGame(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "missing query parameter", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	tok, err := h.creds.Token(r.Context(), event.Twitch)
	if err != nil {
		_ = json.NewEncoder(w).Encode([]twitchapi.Category{})
		return
	}
	cats, err := twitchapi.SearchCategories(r.Context(), h.cfg.TwitchClientID, tok, query)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("category search failed", slog.Any("err", err))
		http.Error(w, "category search failed", http.StatusBadGateway)
		return
	}
	_ = json.NewEncoder(w).Encode(cats)
}

// metadataRequest is the dashboard's stream metadata update.
type metadataRequest struct {
	Title        string   `json:"title"`
	TwitchGameID string   `json:"twitchGameId"`
	Platforms    []string `json:"platforms"`
}

// HandleStreamMetadata pushes a title (and, on Twitch, a category) update to
// each selected platform independently and reports one status string per
// platform. A failure on one platform never blocks the others.
func (h *Handlers) HandleStreamMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" && req.TwitchGameID == "" {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if len(req.Platforms) == 0 {
		http.Error(w, "no platforms selected", http.StatusBadRequest)
		return
	}

	logger := telemetry.LoggerWithCorr(r.Context())
	results := make(map[string]string, len(req.Platforms))
	for _, p := range req.Platforms {
		var status string
		switch event.Platform(p) {
		case event.Twitch:
			status = h.updateTwitchMetadata(r.Context(), req.Title, req.TwitchGameID)
		case event.YouTube:
			status = h.updateYouTubeMetadata(r.Context(), req.Title)
		case event.Kick:
			// No public channel update endpoint.
			status = metadataNotSupported
		default:
			status = "Unknown Platform"
		}
		results[p] = status
		logger.Info("stream metadata update",
			slog.String("platform", p), slog.String("status", status))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (h *Handlers) updateTwitchMetadata(ctx context.Context, title, gameID string) string {
	tok, err := h.creds.Token(ctx, event.Twitch)
	if err != nil {
		return "Not Connected"
	}
	user, err := twitchapi.GetSelf(ctx, h.cfg.TwitchClientID, tok)
	if err != nil {
		return err.Error()
	}
	if err := twitchapi.UpdateChannel(ctx, h.cfg.TwitchClientID, tok, user.ID, title, gameID); err != nil {
		return err.Error()
	}
	return metadataSuccess
}

func (h *Handlers) updateYouTubeMetadata(ctx context.Context, title string) string {
	if h.yt == nil {
		return "Not Configured"
	}
	if title == "" {
		return "Title Required"
	}
	tok, err := h.creds.Token(ctx, event.YouTube)
	if err != nil {
		return "Not Connected"
	}
	svc, err := h.yt.Client(ctx, tok)
	if err != nil {
		return err.Error()
	}
	updated, err := youtubeapi.UpdateActiveBroadcastTitle(ctx, svc, title)
	if err != nil {
		return err.Error()
	}
	if !updated {
		return metadataNoStream
	}
	return metadataSuccess
}
