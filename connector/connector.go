// Package connector holds the platform chat connectors and the supervisor
// that keeps them running. A Connector is one connection attempt to one
// platform; the Supervisor owns the reconnect/refresh state machine around it.
package connector

import (
	"context"

	"github.com/onnwee/stream-hub/event"
)

// Identity describes the account a connector is signed in as.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Publisher receives normalized events from connectors. The hub implements it.
type Publisher interface {
	PublishMessage(msg event.Message)
	PublishActivity(ev event.ActivityEvent)
}

// Connector is one platform connection. Run blocks for the life of a single
// connection attempt and returns the terminating error (nil on context
// cancellation). ready must be called exactly once when the connection is
// established; the supervisor uses it to flip state and reset backoff.
type Connector interface {
	Platform() event.Platform
	Run(ctx context.Context, ready func()) error
	// Identity returns the signed-in account, or nil before the first
	// successful connect.
	Identity() *Identity
}

// Sender is implemented by connectors that can deliver outbound chat.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// State is a connector's position in the supervisor state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Status is the externally visible condition of one platform connection.
type Status struct {
	Platform  event.Platform `json:"platform"`
	State     State          `json:"state"`
	Connected bool           `json:"connected"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	LastError string         `json:"lastError,omitempty"`
}
