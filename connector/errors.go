package connector

import (
	"errors"
	"strings"

	"github.com/onnwee/stream-hub/kickapi"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/twitchapi"
)

// ErrorClass represents how the supervisor should react to a connection error.
type ErrorClass int

const (
	// ErrorClassTransient indicates the connection should be retried with backoff.
	ErrorClassTransient ErrorClass = iota
	// ErrorClassAuth indicates the credential is stale or revoked; the supervisor
	// attempts one token refresh before reconnecting.
	ErrorClassAuth
	// ErrorClassRateLimit indicates the platform is throttling us; retry with a
	// longer backoff.
	ErrorClassRateLimit
	// ErrorClassFatal indicates retrying cannot help (bad configuration,
	// nonexistent channel).
	ErrorClassFatal
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassAuth:
		return "auth"
	case ErrorClassRateLimit:
		return "rate_limit"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify buckets connection errors for the supervisor's retry policy.
//
// Auth errors:
// - credential manager sentinels (no credential / refresh rejected)
// - platform API rejections (401/403, invalid or expired tokens)
//
// Rate-limit errors:
// - 429, throttling responses
//
// Fatal errors:
// - nonexistent channel or chat (404, does not exist)
// - invalid configuration (bad client id, malformed channel name)
//
// Everything else is transient: network failures, server errors, dropped
// sockets. Unknown errors default to transient so a flaky platform does not
// permanently kill a connection.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}

	if errors.Is(err, oauth.ErrAuthRequired) || errors.Is(err, oauth.ErrNoCredential) ||
		errors.Is(err, twitchapi.ErrRejected) || errors.Is(err, kickapi.ErrRejected) {
		return ErrorClassAuth
	}

	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "throttled") {
		return ErrorClassRateLimit
	}

	// Server errors beat the generic auth/not-found patterns below
	if strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout") {
		return ErrorClassTransient
	}

	if strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "login authentication failed") ||
		strings.Contains(lower, "invalid oauth") ||
		strings.Contains(lower, "token expired") ||
		strings.Contains(lower, "access denied") {
		return ErrorClassAuth
	}

	if strings.Contains(lower, "404") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "no such channel") ||
		strings.Contains(lower, "invalid channel") {
		return ErrorClassFatal
	}

	return ErrorClassTransient
}

// IsAuthError checks if an error should trigger a credential refresh.
func IsAuthError(err error) bool {
	return Classify(err) == ErrorClassAuth
}

// IsFatalError checks if an error should stop reconnect attempts.
func IsFatalError(err error) bool {
	return Classify(err) == ErrorClassFatal
}
