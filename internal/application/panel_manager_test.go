package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

type managerFixture struct {
	manager  *PanelManager
	contacts *fakeContacts
	messages *fakeMessages
	unread   *fakeUnread
	changes  *fakeChanges
}

func newManagerFixture(t *testing.T, maxSessions int) *managerFixture {
	t.Helper()
	cfg := testConfig()
	cfg.Get().Panels.MaxPanelSessionsPerProcess = maxSessions

	f := &managerFixture{
		contacts: newFakeContacts(),
		messages: &fakeMessages{},
		unread:   newFakeUnread(),
		changes:  newFakeChanges(),
	}
	f.contacts.set("t1",
		domain.Contact{ID: "a", Name: "Ann", Platform: "whatsapp", ClientID: "t1", AlaraAutomationActive: boolPtr(true)},
		domain.Contact{ID: "b", Name: "Ben", Platform: "telegram", ClientID: "t1", HumanRequired: boolPtr(true)},
	)
	f.contacts.set("t2", domain.Contact{ID: "z", Name: "Zed", ClientID: "t2"})
	f.manager = NewPanelManager(testLogger(), cfg, f.contacts, f.messages, f.unread, f.changes)
	t.Cleanup(f.manager.CloseAll)
	return f
}

var (
	pinnedOperator = &domain.CurrentUserInfo{ID: "op", Table: domain.SessionTableClients, TenantID: "t1"}
	globalOperator = &domain.CurrentUserInfo{ID: "admin", Table: domain.SessionTableAdmins, CanViewAllUsers: true}
)

func TestPanelManager_OpenRejectsForeignTenantAndBadFilters(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, pinnedOperator, "t2", domain.Filters{}, nil)
	assert.ErrorIs(t, err, domain.ErrForbiddenTenant)

	_, err = f.manager.Open(ctx, pinnedOperator, "", domain.Filters{Status: "Busy"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = f.manager.Open(ctx, nil, "", domain.Filters{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, f.manager.Count())
}

func TestPanelManager_SessionLimit(t *testing.T) {
	f := newManagerFixture(t, 1)
	ctx := context.Background()

	s, err := f.manager.Open(ctx, pinnedOperator, "", domain.Filters{}, &recordingSink{})
	require.NoError(t, err)
	_, err = f.manager.Open(ctx, pinnedOperator, "", domain.Filters{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrTooManySessions)

	f.manager.Close(s.ID())
	assert.Equal(t, 0, f.manager.Count())
	_, err = f.manager.Open(ctx, pinnedOperator, "", domain.Filters{}, &recordingSink{})
	assert.NoError(t, err)
}

func TestPanelManager_SessionPushesRankedContacts(t *testing.T) {
	f := newManagerFixture(t, 0)
	sink := &recordingSink{}

	s, err := f.manager.Open(context.Background(), pinnedOperator, "", domain.Filters{}, sink)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.TenantID())
	got, ok := f.manager.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	require.Eventually(t, func() bool {
		p, ok := sink.lastContacts()
		return ok && len(p.Items) == 2
	}, waitFor, tick)
	p, _ := sink.lastContacts()
	assert.Equal(t, []string{"b", "a"}, visibleIDs(p.Items))
	assert.Equal(t, "t1", p.TenantID)

	require.NoError(t, s.SetFilters(domain.Filters{Platform: "whatsapp"}))
	p, _ = sink.lastContacts()
	assert.Equal(t, []string{"a"}, visibleIDs(p.Items))
	assert.ErrorIs(t, s.SetFilters(domain.Filters{Status: "nope"}), domain.ErrInvalidFilter)
	assert.Equal(t, "whatsapp", s.Filters().Platform)

	require.Eventually(t, func() bool {
		p, ok := sink.lastAnalytics()
		return ok && p.Connection == domain.ConnectionConnected
	}, waitFor, tick)
}

func TestPanelManager_UnreadPublishUpdatesSession(t *testing.T) {
	f := newManagerFixture(t, 0)
	sink := &recordingSink{}

	s, err := f.manager.Open(context.Background(), pinnedOperator, "", domain.Filters{}, sink)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.ContactsPayload().Items) == 2 }, waitFor, tick)
	require.Equal(t, []string{"t1"}, f.unread.subscriberTenants())

	at := time.Now()
	f.unread.publish(domain.UnreadUpdate{TenantID: "t2", ContactID: "a", Count: 9})
	f.unread.publish(domain.UnreadUpdate{TenantID: "t1", ContactID: "a", Count: 4, At: &at})

	items := s.ContactsPayload().Items
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[1].ID)
	assert.Equal(t, 4, items[1].Unread)
	require.NotNil(t, items[1].LastMessageAt)

	_, err = s.SelectContact(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ContactsPayload().Items[1].Unread)
	assert.Equal(t, []markReadCall{{tenant: "t1", contactID: "a"}}, f.unread.markedCalls())
}

func TestPanelSession_SetTenant(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	pinned, err := f.manager.Open(ctx, pinnedOperator, "", domain.Filters{}, &recordingSink{})
	require.NoError(t, err)
	assert.ErrorIs(t, pinned.SetTenant("t2"), domain.ErrForbiddenTenant)
	assert.Equal(t, "t1", pinned.TenantID())

	global, err := f.manager.Open(ctx, globalOperator, "t1", domain.Filters{}, &recordingSink{})
	require.NoError(t, err)
	require.NoError(t, global.SetTenant("t2"))
	assert.Equal(t, "t2", global.TenantID())
	assert.Equal(t, "t2", global.Contacts().TenantID())
	assert.Equal(t, "t2", global.Analytics().TenantID())
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"z"}, visibleIDs(global.ContactsPayload().Items))
	}, waitFor, tick)
}

func TestPanelManager_CloseAllStopsSessions(t *testing.T) {
	f := newManagerFixture(t, 0)
	s, err := f.manager.Open(context.Background(), globalOperator, "", domain.Filters{}, &recordingSink{})
	require.NoError(t, err)
	require.Equal(t, 1, f.changes.active())

	f.manager.CloseAll()
	assert.Equal(t, 0, f.manager.Count())
	assert.Equal(t, 0, f.changes.active())
	assert.Empty(t, f.unread.subscriberTenants())
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)
	assert.ErrorIs(t, s.SetTenant("t1"), domain.ErrPanelStopped)
}

func TestPanelManager_OneShotQueries(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()
	f.unread.counts["a"] = 1
	f.messages.events = []domain.MessageEvent{
		{ID: "m1", Timestamp: time.Now().Add(-time.Minute), ChatID: "c1", UserID: "u1", ClientID: "t1"},
	}

	items, err := f.manager.QueryContacts(ctx, "t1", domain.Filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, visibleIDs(items))
	assert.Equal(t, 1, items[1].Unread)
	for _, it := range items {
		assert.NotEmpty(t, it.Gradient)
	}

	_, err = f.manager.QueryContacts(ctx, "t1", domain.Filters{Status: "Busy"})
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)

	f.contacts.setErr(errBackend)
	_, err = f.manager.QueryContacts(ctx, "t1", domain.Filters{})
	assert.ErrorIs(t, err, errBackend)

	snap, err := f.manager.QueryAnalytics(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalChats)
	require.Len(t, snap.RecentActivity, 1)

	require.NoError(t, f.manager.MarkRead(ctx, "t1", "a"))
	assert.Equal(t, []markReadCall{{tenant: "t1", contactID: "a"}}, f.unread.markedCalls())
}
