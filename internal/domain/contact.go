package domain

import (
	"strings"
	"time"
)

// Status is the derived availability of a contact. It is never stored.
type Status string

const (
	StatusOnline        Status = "online"
	StatusOffline       Status = "offline"
	StatusHumanRequired Status = "human-required"
	StatusNoInfo        Status = "no-info"
)

// Contact is an end user/contact as read from the users table.
// Optional flags are pointers: nil means the backend holds no value.
type Contact struct {
	ID                    string `json:"id"`
	Nickname              string `json:"nickname,omitempty"`
	Name                  string `json:"name,omitempty"`
	Username              string `json:"username,omitempty"`
	Phone                 string `json:"phone,omitempty"`
	Email                 string `json:"email,omitempty"`
	Platform              string `json:"platform,omitempty"`
	ClientID              string `json:"client_id,omitempty"`
	AlaraAutomationActive *bool  `json:"alara_automation_active,omitempty"`
	HumanRequired         *bool  `json:"human_required,omitempty"`
}

// DisplayName returns the first non-empty of nickname, name and username.
func (c Contact) DisplayName() string {
	for _, candidate := range []string{c.Nickname, c.Name, c.Username} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Status derives the contact's status from its flags.
func (c Contact) Status() Status {
	return DeriveStatus(c.HumanRequired, c.AlaraAutomationActive)
}

// searchText is the lower-cased, space-joined haystack used by the text filter.
func (c Contact) searchText() string {
	parts := make([]string, 0, 5)
	for _, field := range []string{c.Nickname, c.Name, c.Username, c.Phone, c.Email} {
		if field != "" {
			parts = append(parts, field)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// DeriveStatus maps the two optional flags to a Status.
// humanRequired takes precedence over the automation flag.
func DeriveStatus(humanRequired, automationActive *bool) Status {
	switch {
	case humanRequired != nil && *humanRequired:
		return StatusHumanRequired
	case automationActive != nil && *automationActive:
		return StatusOnline
	case automationActive != nil && !*automationActive:
		return StatusOffline
	default:
		return StatusNoInfo
	}
}

// Overlays is the per-contact state layered over fetched contacts.
// Both maps are keyed by contact ID.
type Overlays struct {
	Unread        map[string]int       `json:"unread"`
	LastMessageAt map[string]time.Time `json:"last_message_at"`
}

// NewOverlays returns empty, non-nil overlays.
func NewOverlays() Overlays {
	return Overlays{
		Unread:        make(map[string]int),
		LastMessageAt: make(map[string]time.Time),
	}
}

// Clone returns a deep copy.
func (o Overlays) Clone() Overlays {
	out := Overlays{
		Unread:        make(map[string]int, len(o.Unread)),
		LastMessageAt: make(map[string]time.Time, len(o.LastMessageAt)),
	}
	for k, v := range o.Unread {
		out.Unread[k] = v
	}
	for k, v := range o.LastMessageAt {
		out.LastMessageAt[k] = v
	}
	return out
}

// UnreadFor returns the unread count for id, 0 when unknown.
func (o Overlays) UnreadFor(id string) int {
	if n := o.Unread[id]; n > 0 {
		return n
	}
	return 0
}

// VisibleContact is a contact merged with its overlay state and derived status,
// ready to be rendered.
type VisibleContact struct {
	Contact
	DisplayName   string     `json:"display_name"`
	Status        Status     `json:"status"`
	Unread        int        `json:"unread"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Gradient      string     `json:"gradient,omitempty"`
}

// hasLastMessage reports whether a last-message timestamp is known.
func (v VisibleContact) hasLastMessage() bool {
	return v.LastMessageAt != nil && !v.LastMessageAt.IsZero()
}

// Merge builds the VisibleContact for c from the overlays.
func Merge(c Contact, overlays Overlays) VisibleContact {
	v := VisibleContact{
		Contact:     c,
		DisplayName: c.DisplayName(),
		Status:      c.Status(),
		Unread:      overlays.UnreadFor(c.ID),
	}
	if ts, ok := overlays.LastMessageAt[c.ID]; ok && !ts.IsZero() {
		ts := ts
		v.LastMessageAt = &ts
	}
	return v
}
