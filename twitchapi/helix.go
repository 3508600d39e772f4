package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// HelixBaseURL is the Twitch Helix API host. Overridable in tests.
var HelixBaseURL = "https://api.twitch.tv/helix"

// User is the subset of the Helix users payload the hub cares about.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"profile_image_url"`
}

type usersResponse struct {
	Data []User `json:"data"`
}

// GetSelf fetches the identity of the user the access token belongs to.
func GetSelf(ctx context.Context, clientID, accessToken string) (*User, error) {
	if clientID == "" || accessToken == "" {
		return nil, errors.New("missing clientID or accessToken")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, HelixBaseURL+"/users", nil)
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
		return nil, fmt.Errorf("%w: get users: %s: %s", ErrRejected, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix get users failed: %s: %s", resp.Status, string(b))
	}
	var out usersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New("helix get users returned no rows")
	}
	return &out.Data[0], nil
}
