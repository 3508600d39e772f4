// Package kickapi implements the Kick OAuth 2.1 PKCE flow and the public API
// calls the hub needs (identity and chat send).
package kickapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// IDBaseURL is the Kick identity host. Overridable in tests.
var IDBaseURL = "https://id.kick.com"

// TokenResult represents the response to a PKCE code exchange or refresh.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// ErrRejected indicates Kick refused the grant; the user must re-authenticate.
var ErrRejected = errors.New("kick rejected the grant")

// NewCodeVerifier returns a high-entropy PKCE code verifier.
func NewCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeS256 derives the S256 code challenge from a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// BuildAuthorizeURL constructs the PKCE authorization URL. The caller holds
// the verifier until the callback and passes it to ExchangeAuthCode.
func BuildAuthorizeURL(clientID, redirectURI, scopes, state, codeChallenge string) (string, error) {
	if clientID == "" || redirectURI == "" || codeChallenge == "" {
		return "", errors.New("missing clientID, redirectURI or codeChallenge")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", clientID)
	v.Set("redirect_uri", redirectURI)
	if scopes != "" {
		v.Set("scope", strings.TrimSpace(strings.ReplaceAll(scopes, ",", " ")))
	}
	v.Set("code_challenge", codeChallenge)
	v.Set("code_challenge_method", "S256")
	if state != "" {
		v.Set("state", state)
	}
	return IDBaseURL + "/oauth/authorize?" + v.Encode(), nil
}

// ExchangeAuthCode exchanges an authorization code plus its PKCE verifier for
// tokens.
func ExchangeAuthCode(ctx context.Context, clientID, clientSecret, code, redirectURI, verifier string) (*TokenResult, error) {
	if clientID == "" || code == "" || redirectURI == "" || verifier == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", verifier)
	return postToken(ctx, form, "auth code exchange")
}

// RefreshToken exchanges a refresh token for a new access token.
func RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResult, error) {
	if clientID == "" || refreshToken == "" {
		return nil, errors.New("missing clientID or refreshToken")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	form.Set("refresh_token", refreshToken)
	return postToken(ctx, form, "refresh")
}

func postToken(ctx context.Context, form url.Values, op string) (*TokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, IDBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s: %s: %s", ErrRejected, op, resp.Status, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kick %s failed: %s: %s", op, resp.Status, string(b))
	}
	var res TokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}
