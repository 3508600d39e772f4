package event

import (
	"encoding/json"
	"fmt"
)

// Server -> consumer envelope types.
const (
	TypeSnapshot      = "snapshot"
	TypeChatMessage   = "chat-message"
	TypeActivityEvent = "activity-event"
	TypeWidgetEvent   = "widget-event"
	TypeTimerFinished = "timer-finished"
	TypeError         = "error"
)

// Consumer -> server request types.
const (
	TypeSendMessage   = "send-message"
	TypeWidgetAction  = "widget-action"
	TypeSimulateEvent = "simulate-event"
)

// Envelope is the unit the hub fans out to sessions: a type discriminator and
// a pre-encoded payload. Payloads are encoded once at publish time so that a
// single event costs one marshal regardless of session count.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// MustEnvelope is NewEnvelope for payload types that cannot fail to marshal
// (our own structs and maps of primitives).
func MustEnvelope(typ string, payload any) Envelope {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// WidgetDelta is the payload of a widget-event envelope: one partial update
// that sessions fold onto their snapshot to reconstruct the live document.
type WidgetDelta struct {
	ActionType string         `json:"actionType"`
	Payload    map[string]any `json:"payload"`
}

// Snapshot is the first envelope a session receives: the replay buffer plus
// the current widget document, atomic with respect to concurrent publishes.
type Snapshot struct {
	History     []Message      `json:"history"`
	WidgetState map[string]any `json:"widgetState"`
}

// SendMessageRequest asks the outbound router to deliver text to one platform
// or to every connected send-capable platform ("all").
type SendMessageRequest struct {
	Platform string `json:"platform"`
	Text     string `json:"text"`
}

// WidgetActionRequest mutates one widget sub-document.
type WidgetActionRequest struct {
	ActionType string         `json:"actionType"`
	Payload    map[string]any `json:"payload"`
}

// SimulateRequest injects a synthetic event for testing and demos. Data keys
// mirror the normalized Message/ActivityEvent fields; missing ones default.
type SimulateRequest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ErrorPayload is sent to a session whose request could not be handled.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseRequest decodes raw consumer bytes into one of the request structs,
// keyed by the envelope type. Unknown types are an error; the session stays up.
func ParseRequest(data []byte) (string, any, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("parse request envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("request missing type field")
	}

	var (
		req any
		err error
	)
	switch env.Type {
	case TypeSendMessage:
		var m SendMessageRequest
		err = json.Unmarshal(env.Payload, &m)
		req = m
	case TypeWidgetAction:
		var m WidgetActionRequest
		err = json.Unmarshal(env.Payload, &m)
		req = m
	case TypeSimulateEvent:
		var m SimulateRequest
		err = json.Unmarshal(env.Payload, &m)
		req = m
	default:
		return env.Type, nil, fmt.Errorf("unknown request type %q", env.Type)
	}
	if err != nil {
		return env.Type, nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return env.Type, req, nil
}
