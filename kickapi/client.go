package kickapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// APIBaseURL is the Kick public API host. Overridable in tests.
var APIBaseURL = "https://api.kick.com/public/v1"

// User is the subset of the Kick users payload the hub cares about.
type User struct {
	UserID    int    `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"profile_picture"`
}

type usersResponse struct {
	Data []User `json:"data"`
}

// GetSelf fetches the identity of the user the access token belongs to.
func GetSelf(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, errors.New("missing accessToken")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, APIBaseURL+"/users", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: get users: %s: %s", ErrRejected, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kick get users failed: %s: %s", resp.Status, string(b))
	}
	var out usersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New("kick get users returned no rows")
	}
	return &out.Data[0], nil
}

type sendChatRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// SendChatMessage posts a chat message as the authenticated user. The target
// channel is implied by the token ("user" type messages go to the token
// owner's own chatroom).
func SendChatMessage(ctx context.Context, accessToken, content string) error {
	if accessToken == "" || content == "" {
		return errors.New("missing accessToken or content")
	}
	body, err := json.Marshal(sendChatRequest{Content: content, Type: "user"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, APIBaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: send chat: %s: %s", ErrRejected, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kick send chat failed: %s: %s", resp.Status, string(b))
	}
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
