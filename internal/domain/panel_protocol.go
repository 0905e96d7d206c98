package domain

import (
	"time"

	"github.com/coder/websocket"
)

// Message types of the json.v1 panel subprotocol.
const (
	// server -> client
	MessageTypeReady     = "ready"
	MessageTypeContacts  = "contacts"
	MessageTypeAnalytics = "analytics"
	MessageTypeError     = "error"

	// client -> server
	MessageTypeSetFilter     = "set_filter"
	MessageTypeSelectContact = "select_contact"
	MessageTypeUpdateUnread  = "update_unread"
	MessageTypePause         = "pause"
	MessageTypeResume        = "resume"
	MessageTypeReload        = "reload"
	MessageTypeSetTenant     = "set_tenant"

	StatusGoingAway websocket.StatusCode = 1001
)

// ContactsPayload is the body of a "contacts" message.
type ContactsPayload struct {
	TenantID string           `json:"tenant_id,omitempty"`
	Filters  Filters          `json:"filters"`
	Items    []VisibleContact `json:"items"`
	Loading  bool             `json:"loading"`
	Paused   bool             `json:"paused"`
	Error    *ErrorResponse   `json:"error,omitempty"`
}

// AnalyticsPayload is the body of an "analytics" message.
type AnalyticsPayload struct {
	TenantID   string            `json:"tenant_id,omitempty"`
	Snapshot   AnalyticsSnapshot `json:"snapshot"`
	Connection ConnectionState   `json:"connection"`
}

// SelectContactPayload is sent by the client when an operator opens a contact.
type SelectContactPayload struct {
	ContactID string `json:"contact_id"`
}

// UpdateUnreadPayload pushes an unread counter from the client side.
type UpdateUnreadPayload struct {
	ContactID string     `json:"contact_id"`
	Count     int        `json:"count"`
	At        *time.Time `json:"at,omitempty"`
}

// SetTenantPayload changes the tenant both panels are scoped to.
type SetTenantPayload struct {
	TenantID string `json:"tenant_id"`
}
