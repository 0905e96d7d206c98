package websocket

import (
	"encoding/json"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// Subprotocol is the only subprotocol the panel endpoint speaks.
const Subprotocol = "json.v1"

// BaseMessage is the envelope of every message in the json.v1 subprotocol.
type BaseMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inboundMessage keeps the payload raw until the type is known.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadyPayload is sent once the panel session is running.
type ReadyPayload struct {
	SessionID string                  `json:"session_id"`
	TenantID  string                  `json:"tenant_id,omitempty"`
	User      *domain.CurrentUserInfo `json:"user,omitempty"`
}

// NewReadyMessage creates a new message of type "ready".
func NewReadyMessage(p ReadyPayload) BaseMessage {
	return BaseMessage{Type: domain.MessageTypeReady, Payload: p}
}

// NewContactsMessage creates a new message of type "contacts".
func NewContactsMessage(p domain.ContactsPayload) BaseMessage {
	return BaseMessage{Type: domain.MessageTypeContacts, Payload: p}
}

// NewAnalyticsMessage creates a new message of type "analytics".
func NewAnalyticsMessage(p domain.AnalyticsPayload) BaseMessage {
	return BaseMessage{Type: domain.MessageTypeAnalytics, Payload: p}
}

// NewErrorMessage creates a new message of type "error".
func NewErrorMessage(errResp domain.ErrorResponse) BaseMessage {
	return BaseMessage{Type: domain.MessageTypeError, Payload: errResp}
}

// decodePayload unmarshals a client payload. A missing payload leaves v untouched.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
