// Package oauth owns per-platform OAuth credentials: a file-backed durable
// store, single-flight refresh, and jittered background refreshers. It is the
// single source of truth for auth state; connectors and API clients obtain
// tokens only through the Manager.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/stream-hub/event"
)

// Credential is one platform's token set. The zero value means "absent".
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Valid reports whether the access token exists and has at least the given
// buffer of lifetime left.
func (c Credential) Valid(buffer time.Duration) bool {
	return c.AccessToken != "" && time.Until(c.Expiry) > buffer
}

// ErrAuthRequired is returned when the provider rejected the refresh token:
// the user must run the interactive auth flow again.
var ErrAuthRequired = errors.New("oauth: re-authentication required")

// ErrNoCredential is returned when no credential is stored for a platform.
var ErrNoCredential = errors.New("oauth: no credential stored")

// RefreshFunc performs a provider-specific refresh_token grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credential, error)

// expiryBuffer is how much remaining lifetime a token must have to be handed
// out without a refresh attempt first.
const expiryBuffer = 60 * time.Second

// Manager holds the in-memory credential map, persists every change to the
// store before returning, and collapses concurrent refreshes per platform
// into one provider call (refresh tokens are typically single-use).
type Manager struct {
	store *FileStore

	mu         sync.RWMutex
	creds      map[event.Platform]Credential
	refreshers map[event.Platform]RefreshFunc
	group      singleflight.Group
}

// NewManager loads existing credentials from store (a missing file is an
// empty credential set, not an error).
func NewManager(store *FileStore) (*Manager, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &Manager{
		store:      store,
		creds:      creds,
		refreshers: make(map[event.Platform]RefreshFunc),
	}, nil
}

// RegisterRefresher installs the provider-specific refresh call for platform.
func (m *Manager) RegisterRefresher(platform event.Platform, fn RefreshFunc) {
	m.mu.Lock()
	m.refreshers[platform] = fn
	m.mu.Unlock()
}

// Get returns the stored credential for platform, ok=false when absent.
func (m *Manager) Get(platform event.Platform) (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[platform]
	return c, ok && c.AccessToken != ""
}

// Set stores and persists a credential. The write hits disk before Set
// returns so a crash immediately afterwards cannot lose the grant.
func (m *Manager) Set(platform event.Platform, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[platform] = cred
	if err := m.store.Save(m.creds); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

// Revoke removes the platform's credential and persists the removal.
func (m *Manager) Revoke(platform event.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, platform)
	if err := m.store.Save(m.creds); err != nil {
		return fmt.Errorf("persist revoke: %w", err)
	}
	return nil
}

// Refresh exchanges the stored refresh token for a new credential.
// Concurrent callers for the same platform share one in-flight provider call.
// The provider is always contacted even when the stored token is unexpired:
// callers reach for Refresh when the platform has rejected the token they
// hold, and expiry says nothing about server-side revocation. A provider
// rejection surfaces as ErrAuthRequired.
func (m *Manager) Refresh(ctx context.Context, platform event.Platform) (Credential, error) {
	m.mu.RLock()
	seen := m.creds[platform].AccessToken
	m.mu.RUnlock()

	v, err, _ := m.group.Do(string(platform), func() (any, error) {
		return m.refreshOnce(ctx, platform, seen)
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (m *Manager) refreshOnce(ctx context.Context, platform event.Platform, seen string) (Credential, error) {
	m.mu.RLock()
	cur, ok := m.creds[platform]
	fn := m.refreshers[platform]
	m.mu.RUnlock()

	if !ok || cur.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: %s has no refresh token", ErrAuthRequired, platform)
	}
	if fn == nil {
		return Credential{}, fmt.Errorf("oauth: no refresher registered for %s", platform)
	}

	// A flight that completed between this caller observing the credential
	// and entering the group already rotated the token; hand that result out
	// instead of burning the (typically single-use) new refresh token.
	if cur.AccessToken != seen && cur.Valid(expiryBuffer) {
		return cur, nil
	}

	next, err := fn(ctx, cur.RefreshToken)
	if err != nil {
		return Credential{}, err
	}
	// Providers may omit a rotated refresh token; keep the old one.
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if err := m.Set(platform, next); err != nil {
		return Credential{}, err
	}
	slog.Info("credential refreshed", slog.String("platform", string(platform)))
	return next, nil
}

// Token returns an access token that is valid for at least the expiry buffer,
// refreshing first when necessary. This is the only sanctioned way to obtain
// a token for an outbound call.
func (m *Manager) Token(ctx context.Context, platform event.Platform) (string, error) {
	m.mu.RLock()
	cur, ok := m.creds[platform]
	m.mu.RUnlock()
	if !ok || cur.AccessToken == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCredential, platform)
	}
	if cur.Valid(expiryBuffer) {
		return cur.AccessToken, nil
	}
	next, err := m.Refresh(ctx, platform)
	if err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

// StartAutoRefresh launches a goroutine that periodically checks the
// platform's credential and refreshes it when its remaining lifetime falls
// within window. Scheduling is jittered so several instances sharing a
// credential file do not stampede the provider.
func (m *Manager) StartAutoRefresh(ctx context.Context, platform event.Platform, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter of roughly ±20% of the interval.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			cur, ok := m.Get(platform)
			if !ok || cur.RefreshToken == "" {
				continue
			}
			if time.Until(cur.Expiry) > window {
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			_, err := m.Refresh(rctx, platform)
			cancel()
			if err != nil {
				slog.Warn("background token refresh failed",
					slog.String("platform", string(platform)), slog.Any("err", err))
			}
		}
	}()
}
