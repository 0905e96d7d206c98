package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// MockContactRepository serves a fixed contact list per tenant.
type MockContactRepository struct {
	mu       sync.RWMutex
	contacts map[string][]domain.Contact
	Calls    int64
}

// NewMockContactRepository creates an empty repository.
func NewMockContactRepository() *MockContactRepository {
	return &MockContactRepository{contacts: make(map[string][]domain.Contact)}
}

// SetContacts replaces the contacts of tenantID.
func (m *MockContactRepository) SetContacts(tenantID string, contacts []domain.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[tenantID] = contacts
}

// GetFilteredUsers implements domain.ContactRepository. The empty tenant
// returns every tenant's contacts.
func (m *MockContactRepository) GetFilteredUsers(ctx context.Context, tenantID string) ([]domain.Contact, error) {
	atomic.AddInt64(&m.Calls, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tenantID != "" {
		return append([]domain.Contact(nil), m.contacts[tenantID]...), nil
	}
	var all []domain.Contact
	for _, list := range m.contacts {
		all = append(all, list...)
	}
	return all, nil
}

// MockMessageRepository answers every query from one in-memory event list.
type MockMessageRepository struct {
	mu     sync.RWMutex
	events []domain.MessageEvent
}

// NewMockMessageRepository creates a repository holding events.
func NewMockMessageRepository(events []domain.MessageEvent) *MockMessageRepository {
	return &MockMessageRepository{events: events}
}

func (m *MockMessageRepository) filter(since time.Time, tenantID string, keep func(domain.MessageEvent) bool) []domain.MessageEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.MessageEvent
	for _, e := range m.events {
		if tenantID != "" && e.ClientID != tenantID {
			continue
		}
		if e.Timestamp.Before(since) || !keep(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *MockMessageRepository) ListResponded(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	return m.filter(since, tenantID, func(e domain.MessageEvent) bool { return e.ResponseAt != nil }), nil
}

func (m *MockMessageRepository) ListChatActivity(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	return m.filter(since, tenantID, func(e domain.MessageEvent) bool { return e.ChatID != "" }), nil
}

func (m *MockMessageRepository) ListUserActivity(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	return m.filter(since, tenantID, func(e domain.MessageEvent) bool { return e.UserID != "" }), nil
}

// ListRecent assumes events are stored newest first.
func (m *MockMessageRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.MessageEvent, error) {
	out := m.filter(time.Time{}, tenantID, func(domain.MessageEvent) bool { return true })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockMessageRepository) LastMessageTimes(ctx context.Context, tenantID string) (map[string]time.Time, error) {
	times := make(map[string]time.Time)
	for _, e := range m.filter(time.Time{}, tenantID, func(e domain.MessageEvent) bool { return e.UserID != "" }) {
		if e.Timestamp.After(times[e.UserID]) {
			times[e.UserID] = e.Timestamp
		}
	}
	return times, nil
}

// MockUnreadStore keeps counters in memory and fans updates out synchronously.
type MockUnreadStore struct {
	mu       sync.Mutex
	counts   map[string]map[string]int
	handlers map[int]unreadHandler
	nextID   int
}

type unreadHandler struct {
	tenantID string
	fn       domain.UnreadHandler
}

// NewMockUnreadStore creates an empty store.
func NewMockUnreadStore() *MockUnreadStore {
	return &MockUnreadStore{counts: make(map[string]map[string]int), handlers: make(map[int]unreadHandler)}
}

// Publish sets a counter and notifies subscribers of its tenant.
func (m *MockUnreadStore) Publish(update domain.UnreadUpdate) {
	m.mu.Lock()
	if m.counts[update.TenantID] == nil {
		m.counts[update.TenantID] = make(map[string]int)
	}
	m.counts[update.TenantID][update.ContactID] = update.Count
	targets := make([]domain.UnreadHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		if h.tenantID == "" || h.tenantID == update.TenantID {
			targets = append(targets, h.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range targets {
		fn(update)
	}
}

func (m *MockUnreadStore) UnreadCounts(ctx context.Context, tenantID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for tenant, counts := range m.counts {
		if tenantID != "" && tenant != tenantID {
			continue
		}
		for id, n := range counts {
			out[id] += n
		}
	}
	return out, nil
}

func (m *MockUnreadStore) MarkRead(ctx context.Context, tenantID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenant, counts := range m.counts {
		if tenantID == "" || tenant == tenantID {
			delete(counts, contactID)
		}
	}
	return nil
}

func (m *MockUnreadStore) SubscribeUnread(ctx context.Context, tenantID string, handler domain.UnreadHandler) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = unreadHandler{tenantID: tenantID, fn: handler}
	return subscriptionFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
		return nil
	}), nil
}

// MockChangeSubscriber records handlers and lets benchmarks emit change events.
type MockChangeSubscriber struct {
	mu       sync.Mutex
	handlers map[int]changeHandler
	nextID   int
}

type changeHandler struct {
	tenantID string
	fn       domain.MessageChangeHandler
}

// NewMockChangeSubscriber creates a subscriber without listeners.
func NewMockChangeSubscriber() *MockChangeSubscriber {
	return &MockChangeSubscriber{handlers: make(map[int]changeHandler)}
}

func (m *MockChangeSubscriber) SubscribeMessageChanges(ctx context.Context, tenantID string, handler domain.MessageChangeHandler) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = changeHandler{tenantID: tenantID, fn: handler}
	return subscriptionFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
		return nil
	}), nil
}

// Emit delivers evt to every handler whose tenant filter admits it.
func (m *MockChangeSubscriber) Emit(evt domain.ChangeEvent) {
	m.mu.Lock()
	targets := make([]domain.MessageChangeHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		if h.tenantID == "" || h.tenantID == evt.RowTenant() {
			targets = append(targets, h.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range targets {
		fn(evt)
	}
}

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }
