// Package protocol defines the WebSocket messages exchanged between the chat
// screen and the session bridge. All messages are JSON objects carrying a
// "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeDraft            = "draft"
	TypeSend             = "send"
	TypeEndChat          = "end_chat"
	TypeRequestExtension = "request_extension"
	TypeAcceptExtension  = "accept_extension"
	TypeDeclineExtension = "decline_extension"
	TypePing             = "ping"
)

// Server -> Client message types.
const (
	TypeState    = "state"
	TypeToast    = "toast"
	TypeNavigate = "navigate"
	TypeError    = "error"
	TypePong     = "pong"
)

// Error codes carried by ErrorMsg.
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeForbidden   = "forbidden"
	CodeConflict    = "conflict"
	CodeInternal    = "internal"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full payload and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// DraftMsg replaces the composer text. Each draft counts as a keystroke for
// the typing indicator.
type DraftMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendMsg sends the current draft.
type SendMsg struct {
	Type string `json:"type"`
}

// EndChatMsg ends the session.
type EndChatMsg struct {
	Type string `json:"type"`
}

// RequestExtensionMsg asks the listener for more time.
type RequestExtensionMsg struct {
	Type    string `json:"type"`
	Minutes int    `json:"minutes"`
}

// AcceptExtensionMsg accepts the pending extension request.
type AcceptExtensionMsg struct {
	Type string `json:"type"`
}

// DeclineExtensionMsg declines the pending extension request.
type DeclineExtensionMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// StateMsg carries the full chat screen state.
type StateMsg struct {
	Type  string      `json:"type"`
	State interface{} `json:"state"`
}

// ToastMsg is a transient notification.
type ToastMsg struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Variant     string `json:"variant"`
}

// NavigateMsg tells the client to leave the chat screen for Route.
type NavigateMsg struct {
	Type  string `json:"type"`
	Route string `json:"route"`
}

// ErrorMsg reports a rejected command.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// An error is returned for unknown or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeDraft:
		var m DraftMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSend:
		var m SendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndChat:
		var m EndChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRequestExtension:
		var m RequestExtensionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAcceptExtension:
		var m AcceptExtensionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeclineExtension:
		var m DeclineExtensionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage marshals payload and sets its "type" key to msgType.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
