package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/logger"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

var errBackend = errors.New("backend unavailable")

func testLogger() domain.Logger { return logger.NewNop() }

func testConfig() config.Provider {
	return config.StaticProvider{Config: &config.Config{
		App: config.AppConfig{ServiceName: "daisi-panel-service-test"},
		Auth: config.AuthConfig{
			SessionTokenAESKey:  "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
			SessionTokenTTLSecs: 3600,
		},
		Panels: config.PanelsConfig{
			ContactPollIntervalMs:   3_600_000,
			AnalyticsRefreshSeconds: 3600,
			AnalyticsSettleDelayMs:  3_600_000,
			FetchTimeoutSeconds:     5,
		},
	}}
}

// fakeContacts serves contacts per tenant. A non-nil hook overrides the
// lookup and may block to simulate slow backends.
type fakeContacts struct {
	mu       sync.Mutex
	byTenant map[string][]domain.Contact
	err      error
	calls    int
	hook     func(ctx context.Context, call int, tenant string) ([]domain.Contact, error)
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byTenant: make(map[string][]domain.Contact)}
}

func (f *fakeContacts) set(tenant string, contacts ...domain.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byTenant[tenant] = contacts
}

func (f *fakeContacts) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeContacts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeContacts) GetFilteredUsers(ctx context.Context, tenant string) ([]domain.Contact, error) {
	f.mu.Lock()
	f.calls++
	call, hook, err := f.calls, f.hook, f.err
	list := append([]domain.Contact(nil), f.byTenant[tenant]...)
	if tenant == "" {
		list = nil
		for _, l := range f.byTenant {
			list = append(list, l...)
		}
	}
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, call, tenant)
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

// fakeMessages answers every query from one event list; ListRecent counts
// as one refresh. A non-nil recentHook runs inside ListRecent with the
// refresh number and may block.
type fakeMessages struct {
	mu         sync.Mutex
	events     []domain.MessageEvent
	err        error
	refreshes  int
	lastTimes  map[string]time.Time
	recentHook func(refresh int)
}

func (f *fakeMessages) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMessages) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeMessages) list(tenant string) ([]domain.MessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MessageEvent
	for _, e := range f.events {
		if tenant == "" || e.ClientID == tenant {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeMessages) ListResponded(ctx context.Context, since time.Time, tenant string) ([]domain.MessageEvent, error) {
	return f.list(tenant)
}

func (f *fakeMessages) ListChatActivity(ctx context.Context, since time.Time, tenant string) ([]domain.MessageEvent, error) {
	return f.list(tenant)
}

func (f *fakeMessages) ListUserActivity(ctx context.Context, since time.Time, tenant string) ([]domain.MessageEvent, error) {
	return f.list(tenant)
}

func (f *fakeMessages) ListRecent(ctx context.Context, tenant string, limit int) ([]domain.MessageEvent, error) {
	f.mu.Lock()
	f.refreshes++
	refresh, hook := f.refreshes, f.recentHook
	f.mu.Unlock()
	if hook != nil {
		hook(refresh)
	}
	out, err := f.list(tenant)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (f *fakeMessages) LastMessageTimes(ctx context.Context, tenant string) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time, len(f.lastTimes))
	for k, v := range f.lastTimes {
		out[k] = v
	}
	return out, nil
}

type markReadCall struct {
	tenant    string
	contactID string
}

// fakeUnread keeps counters in memory and records MarkRead calls.
type fakeUnread struct {
	mu        sync.Mutex
	counts    map[string]int
	markErr   error
	marked    []markReadCall
	handlers  map[int]domain.UnreadHandler
	tenants   map[int]string
	nextSubID int
}

func newFakeUnread() *fakeUnread {
	return &fakeUnread{counts: make(map[string]int), handlers: make(map[int]domain.UnreadHandler), tenants: make(map[int]string)}
}

func (f *fakeUnread) UnreadCounts(ctx context.Context, tenant string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeUnread) setCount(contactID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[contactID] = n
}

func (f *fakeUnread) MarkRead(ctx context.Context, tenant, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, markReadCall{tenant: tenant, contactID: contactID})
	if f.markErr != nil {
		return f.markErr
	}
	delete(f.counts, contactID)
	return nil
}

func (f *fakeUnread) markedCalls() []markReadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]markReadCall(nil), f.marked...)
}

func (f *fakeUnread) SubscribeUnread(ctx context.Context, tenant string, handler domain.UnreadHandler) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	f.handlers[id] = handler
	f.tenants[id] = tenant
	return subscriptionFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
		delete(f.tenants, id)
		return nil
	}), nil
}

func (f *fakeUnread) subscriberTenants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out
}

func (f *fakeUnread) publish(u domain.UnreadUpdate) {
	f.mu.Lock()
	handlers := make([]domain.UnreadHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(u)
	}
}

// fakeChanges records subscriptions and delivers events to every handler,
// leaving tenant filtering to the subscriber.
type fakeChanges struct {
	mu        sync.Mutex
	err       error
	handlers  map[int]domain.MessageChangeHandler
	tenants   []string
	nextSubID int
}

func newFakeChanges() *fakeChanges {
	return &fakeChanges{handlers: make(map[int]domain.MessageChangeHandler)}
}

func (f *fakeChanges) SubscribeMessageChanges(ctx context.Context, tenant string, handler domain.MessageChangeHandler) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, tenant)
	if f.err != nil {
		return nil, f.err
	}
	id := f.nextSubID
	f.nextSubID++
	f.handlers[id] = handler
	return subscriptionFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
		return nil
	}), nil
}

func (f *fakeChanges) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeChanges) subscribedTenants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tenants...)
}

func (f *fakeChanges) emit(evt domain.ChangeEvent) {
	f.mu.Lock()
	handlers := make([]domain.MessageChangeHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }

// recordingSink keeps the last payloads pushed to it.
type recordingSink struct {
	mu        sync.Mutex
	contacts  []domain.ContactsPayload
	analytics []domain.AnalyticsPayload
}

func (s *recordingSink) PushContacts(ctx context.Context, p domain.ContactsPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, p)
}

func (s *recordingSink) PushAnalytics(ctx context.Context, p domain.AnalyticsPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = append(s.analytics, p)
}

func (s *recordingSink) lastContacts() (domain.ContactsPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contacts) == 0 {
		return domain.ContactsPayload{}, false
	}
	return s.contacts[len(s.contacts)-1], true
}

func (s *recordingSink) lastAnalytics() (domain.AnalyticsPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.analytics) == 0 {
		return domain.AnalyticsPayload{}, false
	}
	return s.analytics[len(s.analytics)-1], true
}

func contactIDs(list []domain.Contact) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func visibleIDs(list []domain.VisibleContact) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.ID)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
