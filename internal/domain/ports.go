package domain

import (
	"context"
	"time"
)

// ContactRepository fetches contacts from the users table.
type ContactRepository interface {
	// GetFilteredUsers lists contacts of tenantID, or of every tenant when tenantID is "".
	GetFilteredUsers(ctx context.Context, tenantID string) ([]Contact, error)
}

// MessageRepository runs the message queries used by both panels.
// tenantID "" means unscoped.
type MessageRepository interface {
	// ListResponded returns events since the threshold that carry a response timestamp.
	ListResponded(ctx context.Context, since time.Time, tenantID string) ([]MessageEvent, error)
	// ListChatActivity returns events since the threshold that carry a chat ID.
	ListChatActivity(ctx context.Context, since time.Time, tenantID string) ([]MessageEvent, error)
	// ListUserActivity returns events since the threshold that carry an end-user ID.
	ListUserActivity(ctx context.Context, since time.Time, tenantID string) ([]MessageEvent, error)
	// ListRecent returns the newest events, most recent first.
	ListRecent(ctx context.Context, tenantID string, limit int) ([]MessageEvent, error)
	// LastMessageTimes returns the newest message time per end-user ID.
	LastMessageTimes(ctx context.Context, tenantID string) (map[string]time.Time, error)
}

// UnreadUpdate is an externally pushed change of a contact's unread counter.
type UnreadUpdate struct {
	TenantID  string     `json:"tenant_id,omitempty"`
	ContactID string     `json:"contact_id"`
	Count     int        `json:"count"`
	At        *time.Time `json:"at,omitempty"`
}

// UnreadHandler receives unread updates.
type UnreadHandler func(update UnreadUpdate)

// UnreadStore persists read-state and distributes unread counter changes.
type UnreadStore interface {
	UnreadCounts(ctx context.Context, tenantID string) (map[string]int, error)
	MarkRead(ctx context.Context, tenantID, contactID string) error
	SubscribeUnread(ctx context.Context, tenantID string, handler UnreadHandler) (Subscription, error)
}

// MessageChangeHandler receives realtime change events for the messages table.
type MessageChangeHandler func(evt ChangeEvent)

// MessageChangeSubscriber delivers change events for the messages table,
// filtered server side by tenant when tenantID is not "".
type MessageChangeSubscriber interface {
	SubscribeMessageChanges(ctx context.Context, tenantID string, handler MessageChangeHandler) (Subscription, error)
}

// Subscription is a live push subscription.
type Subscription interface {
	Unsubscribe() error
}

// SessionLookup returns the signed-in operator, or nil when ctx carries none.
type SessionLookup interface {
	CurrentUserInfo(ctx context.Context) *CurrentUserInfo
}
