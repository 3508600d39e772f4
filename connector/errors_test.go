package connector

import (
	"errors"
	"fmt"
	"testing"

	"github.com/onnwee/stream-hub/kickapi"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/twitchapi"
)

func TestClassifySentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"auth required", fmt.Errorf("twitch token: %w", oauth.ErrAuthRequired), ErrorClassAuth},
		{"no credential", fmt.Errorf("kick token: %w", oauth.ErrNoCredential), ErrorClassAuth},
		{"twitch rejection", fmt.Errorf("refresh: %w", twitchapi.ErrRejected), ErrorClassAuth},
		{"kick rejection", fmt.Errorf("send: %w", kickapi.ErrRejected), ErrorClassAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPatterns(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want ErrorClass
	}{
		{"irc login failure", "Login authentication failed", ErrorClassAuth},
		{"http 401", "helix get users failed: 401 Unauthorized", ErrorClassAuth},
		{"expired token", "token expired, re-authenticate", ErrorClassAuth},
		{"rate limited", "API returned status 429: too many requests", ErrorClassRateLimit},
		{"quota", "youtube chat poll: quotaExceeded", ErrorClassRateLimit},
		{"missing channel", "channel \"ghost\" does not exist", ErrorClassFatal},
		{"http 404", "kick channel api returned 404: not found", ErrorClassFatal},
		{"server error", "503 Service Unavailable", ErrorClassTransient},
		{"connection reset", "read tcp: connection reset by peer", ErrorClassTransient},
		{"eof", "tiktok bridge read: unexpected EOF", ErrorClassTransient},
		{"unknown", "something odd happened", ErrorClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != ErrorClassTransient {
		t.Errorf("Classify(nil) = %v, want transient", got)
	}
}

func TestErrorClassString(t *testing.T) {
	cases := map[ErrorClass]string{
		ErrorClassTransient: "transient",
		ErrorClassAuth:      "auth",
		ErrorClassRateLimit: "rate_limit",
		ErrorClassFatal:     "fatal",
		ErrorClass(99):      "unknown",
	}
	for ec, want := range cases {
		if got := ec.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsAuthError(oauth.ErrAuthRequired) {
		t.Error("IsAuthError(ErrAuthRequired) = false")
	}
	if !IsFatalError(errors.New("no such channel")) {
		t.Error("IsFatalError(no such channel) = false")
	}
	if IsFatalError(errors.New("connection refused")) {
		t.Error("connection refused should not be fatal")
	}
}
