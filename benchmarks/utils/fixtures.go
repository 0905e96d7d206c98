package utils

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

var (
	platforms = []string{"whatsapp", "telegram", "instagram", "web"}
	names     = []string{"Ana", "bruno", "Çelik", "Dewi", "eko", "Fajar", "Gita", "hana", "Ilham", "Joko"}
)

func boolPtr(b bool) *bool { return &b }

// GenerateContacts builds n contacts of tenantID cycling through every
// platform and status combination.
func GenerateContacts(tenantID string, n int) []domain.Contact {
	contacts := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		c := domain.Contact{
			ID:       fmt.Sprintf("%s-user-%d", tenantID, i),
			Name:     fmt.Sprintf("%s %d", names[i%len(names)], i),
			Phone:    fmt.Sprintf("+62812%07d", i),
			Platform: platforms[i%len(platforms)],
			ClientID: tenantID,
		}
		switch i % 4 {
		case 0:
			c.HumanRequired = boolPtr(true)
		case 1:
			c.AlaraAutomationActive = boolPtr(true)
		case 2:
			c.AlaraAutomationActive = boolPtr(false)
		}
		contacts = append(contacts, c)
	}
	return contacts
}

// GenerateEvents builds n message events of tenantID, newest first, spread
// one minute apart before now. Every third event has no response yet.
func GenerateEvents(tenantID string, n int, now time.Time) []domain.MessageEvent {
	events := make([]domain.MessageEvent, 0, n)
	for i := 0; i < n; i++ {
		at := now.Add(-time.Duration(i) * time.Minute)
		e := domain.MessageEvent{
			ID:        fmt.Sprintf("%s-msg-%d", tenantID, i),
			Timestamp: at,
			Message:   fmt.Sprintf("message number %d from the benchmark fixture", i),
			ChatID:    fmt.Sprintf("%s-chat-%d", tenantID, i%50),
			UserID:    fmt.Sprintf("%s-user-%d", tenantID, i%200),
			ClientID:  tenantID,
		}
		if i%3 != 0 {
			respondedAt := at.Add(time.Duration(i%15+1) * time.Minute)
			response := "ok"
			e.ResponseAt = &respondedAt
			e.Response = &response
		}
		events = append(events, e)
	}
	return events
}

// CountingSink implements application.PanelSink and counts pushes.
type CountingSink struct {
	Contacts  int64
	Analytics int64
}

func (s *CountingSink) PushContacts(ctx context.Context, payload domain.ContactsPayload) {
	atomic.AddInt64(&s.Contacts, 1)
}

func (s *CountingSink) PushAnalytics(ctx context.Context, payload domain.AnalyticsPayload) {
	atomic.AddInt64(&s.Analytics, 1)
}
