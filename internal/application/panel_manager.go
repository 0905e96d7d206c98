package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
)

// ErrTooManySessions is returned by Open when the per-process session limit is reached.
var ErrTooManySessions = errors.New("too many panel sessions on this instance")

// PanelManager owns every live PanelSession of this process and builds the
// panels they are made of.
type PanelManager struct {
	logger         domain.Logger
	configProvider config.Provider
	contacts       domain.ContactRepository
	messages       domain.MessageRepository
	unread         domain.UnreadStore
	changes        domain.MessageChangeSubscriber

	// gradients backs one-shot HTTP queries; each session panel has its own cache.
	gradients *GradientCache

	mu       sync.Mutex
	sessions map[string]*PanelSession
}

// NewPanelManager creates a new PanelManager.
func NewPanelManager(
	logger domain.Logger,
	configProvider config.Provider,
	contacts domain.ContactRepository,
	messages domain.MessageRepository,
	unread domain.UnreadStore,
	changes domain.MessageChangeSubscriber,
) *PanelManager {
	return &PanelManager{
		logger:         logger,
		configProvider: configProvider,
		contacts:       contacts,
		messages:       messages,
		unread:         unread,
		changes:        changes,
		gradients:      NewGradientCache(),
		sessions:       make(map[string]*PanelSession),
	}
}

// Open resolves the tenant the operator may see, builds both panels and
// starts them. Updates are delivered to sink until Close.
func (m *PanelManager) Open(ctx context.Context, user *domain.CurrentUserInfo, requestedTenant string, filters domain.Filters, sink PanelSink) (*PanelSession, error) {
	if user == nil {
		return nil, errors.New("panel session requires an operator")
	}
	tenant, err := user.EffectiveTenant(requestedTenant)
	if err != nil {
		return nil, err
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	cfg := m.configProvider.Get()
	limit := cfg.Panels.MaxPanelSessionsPerProcess

	id := uuid.NewString()
	sessionCtx := context.WithValue(ctx, contextkeys.PanelSessionIDKey, id)
	sessionCtx = context.WithValue(sessionCtx, contextkeys.UserIDKey, user.ID)
	sessionCtx = context.WithValue(sessionCtx, contextkeys.TenantIDKey, tenant)
	sessionCtx, cancel := context.WithCancel(sessionCtx)

	s := &PanelSession{
		id:       id,
		user:     user,
		ctx:      sessionCtx,
		cancel:   cancel,
		logger:   m.logger,
		sink:     sink,
		unread:   m.unread,
		tenantID: tenant,
		filters:  filters,
	}
	s.contacts = NewContactPanel(
		ContactPanelDeps{Contacts: m.contacts, Messages: m.messages, Unread: m.unread, Logger: m.logger},
		ContactPanelOptions{
			TenantID:     tenant,
			PollInterval: time.Duration(cfg.Panels.ContactPollIntervalMs) * time.Millisecond,
			FetchTimeout: time.Duration(cfg.Panels.FetchTimeoutSeconds) * time.Second,
			OnSelect: func(c domain.Contact) {
				m.logger.Info(sessionCtx, "Contact selected", "contact_id", c.ID, "platform", c.Platform)
			},
		},
	)
	s.analytics = NewAnalyticsPanel(
		AnalyticsPanelDeps{Messages: m.messages, Changes: m.changes, Logger: m.logger},
		AnalyticsPanelOptions{
			TenantID:        tenant,
			RefreshInterval: time.Duration(cfg.Panels.AnalyticsRefreshSeconds) * time.Second,
			SettleDelay:     time.Duration(cfg.Panels.AnalyticsSettleDelayMs) * time.Millisecond,
			FetchTimeout:    time.Duration(cfg.Panels.FetchTimeoutSeconds) * time.Second,
		},
	)

	m.mu.Lock()
	if limit > 0 && len(m.sessions) >= limit {
		m.mu.Unlock()
		cancel()
		m.logger.Warn(ctx, "Rejecting panel session; limit reached", "limit", limit)
		return nil, ErrTooManySessions
	}
	m.sessions[id] = s
	m.mu.Unlock()
	metrics.ActivePanelSessionsGauge.Inc()

	if err := s.start(); err != nil {
		m.Close(id)
		return nil, err
	}
	m.logger.Info(sessionCtx, "Panel session opened", "panel_session_id", id, "tenant_id", tenant, "user_table", user.Table)
	return s, nil
}

// Get returns a live session by ID.
func (m *PanelManager) Get(id string) (*PanelSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close stops a session and forgets it. Unknown IDs are ignored.
func (m *PanelManager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		m.logger.Debug(context.Background(), "Attempted to close a panel session not found in registry", "panel_session_id", id)
		return
	}

	s.close()
	metrics.ActivePanelSessionsGauge.Dec()
	m.logger.Info(s.ctx, "Panel session closed", "panel_session_id", id)
}

// CloseAll stops every live session. Used on shutdown.
func (m *PanelManager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
	m.logger.Info(context.Background(), "All panel sessions closed", "count", len(ids))
}

// Count returns the number of live sessions.
func (m *PanelManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// QueryContacts loads, filters and ranks the contact list of a tenant once.
func (m *PanelManager) QueryContacts(ctx context.Context, tenant string, filters domain.Filters) ([]domain.VisibleContact, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout())
	defer cancel()

	contacts, lastTimes, unread, err := fetchContactInputs(fetchCtx,
		ContactPanelDeps{Contacts: m.contacts, Messages: m.messages, Unread: m.unread, Logger: m.logger}, tenant)
	if err != nil {
		return nil, err
	}
	overlays := domain.NewOverlays()
	for id, n := range unread {
		overlays.Unread[id] = n
	}
	for id, ts := range lastTimes {
		overlays.LastMessageAt[id] = ts
	}

	visible := domain.ComputeVisibleList(contacts, overlays, filters)
	for i := range visible {
		visible[i].Gradient = m.gradients.Get(visible[i].ID)
	}
	return visible, nil
}

// QueryAnalytics computes a fresh analytics snapshot of a tenant once.
func (m *PanelManager) QueryAnalytics(ctx context.Context, tenant string) (domain.AnalyticsSnapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout())
	defer cancel()

	now := time.Now()
	inputs, err := fetchAnalyticsInputs(fetchCtx, m.messages, tenant, domain.WindowStart(now))
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	return domain.ComputeSnapshot(inputs, now), nil
}

// MarkRead persists the read-state of a contact outside of any session.
func (m *PanelManager) MarkRead(ctx context.Context, tenant, contactID string) error {
	if m.unread == nil {
		return errors.New("unread store is not configured")
	}
	if err := m.unread.MarkRead(ctx, tenant, contactID); err != nil {
		return fmt.Errorf("mark contact %s read: %w", contactID, err)
	}
	return nil
}

func (m *PanelManager) fetchTimeout() time.Duration {
	if secs := m.configProvider.Get().Panels.FetchTimeoutSeconds; secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultFetchTimeout
}
