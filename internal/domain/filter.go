package domain

import (
	"fmt"
	"strings"
)

// Status filter labels as offered by the dashboard. StatusNoInfo has no label.
const (
	StatusFilterOnline        = "Online"
	StatusFilterOffline       = "Offline"
	StatusFilterHumanRequired = "Human Required"
)

var statusFilterTargets = map[string]Status{
	StatusFilterOnline:        StatusOnline,
	StatusFilterOffline:       StatusOffline,
	StatusFilterHumanRequired: StatusHumanRequired,
}

// platformVariants lists, per lower-cased platform label, the spellings the
// backend is known to store.
var platformVariants = map[string][]string{
	"whatsapp":  {"whatsapp", "WhatsApp", "Whatsapp", "WHATSAPP"},
	"telegram":  {"telegram", "Telegram", "TELEGRAM"},
	"instagram": {"instagram", "Instagram", "INSTAGRAM"},
}

// Filters are the user-selected view filters. Empty fields are inactive.
type Filters struct {
	Platform string `json:"platform,omitempty"`
	Status   string `json:"status,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Validate rejects status labels the dashboard never offers. Platform labels
// are open-ended and fall back to exact matching.
func (f Filters) Validate() error {
	if f.Status == "" {
		return nil
	}
	if _, ok := statusFilterTargets[f.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	return nil
}

func (f Filters) matchPlatform(c Contact) bool {
	if f.Platform == "" {
		return true
	}
	variants, ok := platformVariants[strings.ToLower(f.Platform)]
	if !ok {
		return c.Platform == f.Platform
	}
	for _, v := range variants {
		if c.Platform == v {
			return true
		}
	}
	return false
}

func (f Filters) matchStatus(status Status) bool {
	if f.Status == "" {
		return true
	}
	target, ok := statusFilterTargets[f.Status]
	if !ok {
		return false
	}
	return status == target
}

func (f Filters) matchQuery(c Contact) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(c.searchText(), q)
}

// Match reports whether v passes every active filter.
func (f Filters) Match(v VisibleContact) bool {
	return f.matchPlatform(v.Contact) && f.matchStatus(v.Status) && f.matchQuery(v.Contact)
}

// FilterContacts keeps the contacts that pass f, preserving order.
func FilterContacts(list []VisibleContact, f Filters) []VisibleContact {
	out := make([]VisibleContact, 0, len(list))
	for _, v := range list {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}
