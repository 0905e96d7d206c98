package domain

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Ranker orders visible contacts for the contact list.
// A Ranker holds a collator and is not safe for concurrent use.
type Ranker struct {
	collator *collate.Collator
}

// NewRanker returns a Ranker comparing names with root-locale collation.
func NewRanker() *Ranker {
	return &Ranker{collator: collate.New(language.Und)}
}

// Compare returns a negative number when a sorts before b, positive when
// after, 0 when tied on every criterion.
//
// Human-required contacts come first. Inside each group: unread contacts
// first, higher unread count, more recent last message, any last message
// before none, then display name.
func (r *Ranker) Compare(a, b VisibleContact) int {
	aHuman := a.Status == StatusHumanRequired
	bHuman := b.Status == StatusHumanRequired
	if aHuman != bHuman {
		if aHuman {
			return -1
		}
		return 1
	}

	if !aHuman {
		aHasUnread, bHasUnread := a.Unread > 0, b.Unread > 0
		if aHasUnread != bHasUnread {
			if aHasUnread {
				return -1
			}
			return 1
		}
	}

	if a.Unread != b.Unread {
		if a.Unread > b.Unread {
			return -1
		}
		return 1
	}

	aHasTS, bHasTS := a.hasLastMessage(), b.hasLastMessage()
	if aHasTS && bHasTS {
		if c := b.LastMessageAt.Compare(*a.LastMessageAt); c != 0 {
			return c
		}
	} else if aHasTS != bHasTS {
		// Missing timestamps count as the oldest possible.
		if aHasTS {
			return -1
		}
		return 1
	}

	return r.collator.CompareString(a.DisplayName, b.DisplayName)
}

// Sort orders list in place. Contacts tied on every criterion keep their
// relative order.
func (r *Ranker) Sort(list []VisibleContact) {
	slices.SortStableFunc(list, r.Compare)
}

// ComputeVisibleList merges overlays into contacts, filters them and returns
// them in ranking order. It never mutates its inputs.
func ComputeVisibleList(contacts []Contact, overlays Overlays, filters Filters) []VisibleContact {
	merged := make([]VisibleContact, 0, len(contacts))
	for _, c := range contacts {
		merged = append(merged, Merge(c, overlays))
	}
	visible := FilterContacts(merged, filters)
	NewRanker().Sort(visible)
	return visible
}
