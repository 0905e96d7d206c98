package application

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

// PanelSink receives rendered panel updates for one client. Implementations
// must not block; the WebSocket connection drops messages on a full buffer.
type PanelSink interface {
	PushContacts(ctx context.Context, payload domain.ContactsPayload)
	PushAnalytics(ctx context.Context, payload domain.AnalyticsPayload)
}

// PanelSession is the pair of panels one dashboard client is looking at,
// scoped to one tenant and rendered with that client's filters.
type PanelSession struct {
	id     string
	user   *domain.CurrentUserInfo
	ctx    context.Context
	cancel context.CancelFunc
	logger domain.Logger
	sink   PanelSink

	contacts  *ContactPanel
	analytics *AnalyticsPanel
	unread    domain.UnreadStore

	mu        sync.Mutex
	tenantID  string
	filters   domain.Filters
	unreadSub domain.Subscription
	closed    bool
}

// ID returns the session ID.
func (s *PanelSession) ID() string { return s.id }

// User returns the operator the session belongs to.
func (s *PanelSession) User() *domain.CurrentUserInfo { return s.user }

// Context returns the session context; it is cancelled when the session closes.
func (s *PanelSession) Context() context.Context { return s.ctx }

// Contacts returns the contact panel of the session.
func (s *PanelSession) Contacts() *ContactPanel { return s.contacts }

// Analytics returns the analytics panel of the session.
func (s *PanelSession) Analytics() *AnalyticsPanel { return s.analytics }

// TenantID returns the tenant both panels are scoped to.
func (s *PanelSession) TenantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID
}

// Filters returns the filters the contact list is rendered with.
func (s *PanelSession) Filters() domain.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SetFilters validates and applies new filters and re-renders the contact list.
func (s *PanelSession) SetFilters(f domain.Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	s.pushContacts(s.contacts.State())
	return nil
}

// SelectContact opens a contact: its unread counter is cleared and persisted.
func (s *PanelSession) SelectContact(ctx context.Context, contactID string) (domain.Contact, error) {
	return s.contacts.Select(ctx, contactID)
}

// UpdateUnread forwards a client side unread change to the contact panel.
func (s *PanelSession) UpdateUnread(p domain.UpdateUnreadPayload) {
	s.contacts.UpdateUnread(p.ContactID, p.Count, p.At)
}

// Pause suspends contact polling.
func (s *PanelSession) Pause() { s.contacts.Pause() }

// Resume restarts contact polling with an immediate reload.
func (s *PanelSession) Resume() { s.contacts.Resume() }

// Reload reloads both panels now.
func (s *PanelSession) Reload() {
	s.contacts.Reload()
	safego.Execute(s.ctx, s.logger, "PanelSessionAnalyticsReload", func() { _ = s.analytics.Refresh(s.ctx) })
}

// SetTenant rescopes both panels. Operators pinned to a tenant get
// domain.ErrForbiddenTenant for any other one.
func (s *PanelSession) SetTenant(requested string) error {
	tenant, err := s.user.EffectiveTenant(requested)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrPanelStopped
	}
	if tenant == s.tenantID {
		s.mu.Unlock()
		return nil
	}
	s.tenantID = tenant
	oldSub := s.unreadSub
	s.unreadSub = nil
	s.mu.Unlock()

	if oldSub != nil {
		if err := oldSub.Unsubscribe(); err != nil {
			s.logger.Warn(s.ctx, "Failed to drop unread subscription of previous tenant", "error", err.Error())
		}
	}
	s.contacts.SetTenant(tenant)
	s.analytics.SetTenant(tenant)
	s.subscribeUnread(tenant)
	s.logger.Info(s.ctx, "Panel session tenant changed", "tenant_id", tenant)
	return nil
}

// ContactsPayload renders the current contact list with the session filters.
func (s *PanelSession) ContactsPayload() domain.ContactsPayload {
	return s.renderContacts(s.contacts.State())
}

// AnalyticsPayload renders the current analytics state.
func (s *PanelSession) AnalyticsPayload() domain.AnalyticsPayload {
	return renderAnalytics(s.analytics.State())
}

func (s *PanelSession) renderContacts(state ContactPanelState) domain.ContactsPayload {
	filters := s.Filters()
	payload := domain.ContactsPayload{
		TenantID: state.TenantID,
		Filters:  filters,
		Items:    state.VisibleList(filters),
		Loading:  state.Loading,
		Paused:   state.Paused,
	}
	if state.LastError != nil {
		errResp := domain.NewErrorResponse(domain.ErrFetchFailed, "Failed to load contacts", state.LastError.Error())
		payload.Error = &errResp
	}
	return payload
}

func renderAnalytics(state AnalyticsState) domain.AnalyticsPayload {
	return domain.AnalyticsPayload{
		TenantID:   state.TenantID,
		Snapshot:   state.Snapshot,
		Connection: state.Connection,
	}
}

func (s *PanelSession) pushContacts(state ContactPanelState) {
	if s.sink == nil {
		return
	}
	s.sink.PushContacts(s.ctx, s.renderContacts(state))
}

func (s *PanelSession) pushAnalytics(state AnalyticsState) {
	if s.sink == nil {
		return
	}
	s.sink.PushAnalytics(s.ctx, renderAnalytics(state))
}

func (s *PanelSession) subscribeUnread(tenant string) {
	if s.unread == nil {
		return
	}
	sub, err := s.unread.SubscribeUnread(s.ctx, tenant, func(u domain.UnreadUpdate) {
		if tenant != "" && u.TenantID != "" && u.TenantID != tenant {
			return
		}
		s.contacts.UpdateUnread(u.ContactID, u.Count, u.At)
	})
	if err != nil {
		s.logger.Error(s.ctx, "Failed to subscribe to unread updates; relying on polling", "tenant_id", tenant, "error", err.Error())
		return
	}

	s.mu.Lock()
	if s.closed || s.tenantID != tenant {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	s.unreadSub = sub
	s.mu.Unlock()
}

func (s *PanelSession) start() error {
	s.contacts.OnChange(s.pushContacts)
	s.analytics.OnChange(s.pushAnalytics)

	if err := s.contacts.Start(s.ctx); err != nil {
		return fmt.Errorf("start contact panel: %w", err)
	}
	if err := s.analytics.Start(s.ctx); err != nil {
		s.contacts.Stop()
		return fmt.Errorf("start analytics panel: %w", err)
	}
	s.subscribeUnread(s.TenantID())
	return nil
}

// close stops both panels and drops the unread subscription. Idempotent.
func (s *PanelSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.unreadSub
	s.unreadSub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn(s.ctx, "Failed to drop unread subscription", "error", err.Error())
		}
	}
	s.contacts.Stop()
	s.analytics.Stop()
	s.cancel()
}
