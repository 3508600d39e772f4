package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Category is one entry from a Helix category search.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

type categoriesResponse struct {
	Data []Category `json:"data"`
}

// SearchCategories looks up stream categories matching query. Helix substring
// search, so partial names work.
func SearchCategories(ctx context.Context, clientID, accessToken, query string) ([]Category, error) {
	if query == "" {
		return nil, errors.New("empty category query")
	}
	u := HelixBaseURL + "/search/categories?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: search categories: %s: %s", ErrRejected, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix search categories failed: %s: %s", resp.Status, string(b))
	}
	var out categoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UpdateChannel patches the broadcaster's channel metadata. Empty title or
// gameID fields are left untouched.
func UpdateChannel(ctx context.Context, clientID, accessToken, broadcasterID, title, gameID string) error {
	if broadcasterID == "" {
		return errors.New("missing broadcaster id")
	}
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	if gameID != "" {
		body["game_id"] = gameID
	}
	if len(body) == 0 {
		return errors.New("nothing to update")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := HelixBaseURL + "/channels?broadcaster_id=" + url.QueryEscape(broadcasterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: update channel: %s: %s", ErrRejected, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix update channel failed: %s: %s", resp.Status, string(b))
	}
	return nil
}
