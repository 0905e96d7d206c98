package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

const (
	defaultContactPollInterval = time.Second
	defaultFetchTimeout        = 10 * time.Second
)

// ContactPanelDeps are the collaborators of a ContactPanel. Messages and
// Unread are optional; without them the matching overlay is only fed by
// UpdateUnread.
type ContactPanelDeps struct {
	Contacts domain.ContactRepository
	Messages domain.MessageRepository
	Unread   domain.UnreadStore
	Logger   domain.Logger
}

// ContactPanelOptions configure a ContactPanel.
type ContactPanelOptions struct {
	TenantID     string
	PollInterval time.Duration
	FetchTimeout time.Duration
	// OnSelect is invoked after a contact was selected and its unread count cleared.
	OnSelect func(domain.Contact)
}

// ContactPanelState is an immutable copy of the panel state handed to listeners.
type ContactPanelState struct {
	TenantID  string
	Contacts  []domain.Contact
	Overlays  domain.Overlays
	Gradients map[string]string
	LastError error
	Loading   bool
	Paused    bool
	LoadedAt  time.Time
}

// VisibleList filters and ranks the state's contacts, attaching gradients.
func (s ContactPanelState) VisibleList(filters domain.Filters) []domain.VisibleContact {
	visible := domain.ComputeVisibleList(s.Contacts, s.Overlays, filters)
	for i := range visible {
		visible[i].Gradient = s.Gradients[visible[i].ID]
	}
	return visible
}

// unreadPin is an unread count set locally by UpdateUnread or Select. It
// records the store count it was set against and the load generation issued
// at that time.
type unreadPin struct {
	count    int
	baseline int
	gen      uint64
}

// ContactPanel keeps the contact list of one tenant fresh by polling and
// merges unread/last-message overlays into it. A locally set unread count
// wins over polled store counts until a load issued after it sees the store
// count move away from its baseline.
type ContactPanel struct {
	deps ContactPanelDeps
	opts ContactPanelOptions

	gradients *GradientCache
	group     *safego.Group

	mu          sync.Mutex
	tenantID    string
	contacts    []domain.Contact
	overlays    domain.Overlays
	storeUnread map[string]int
	pins        map[string]unreadPin
	lastErr     error
	inFlight    int
	loadedAt    time.Time
	issuedGen   uint64
	appliedGen  uint64
	paused      bool
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	listeners   []func(ContactPanelState)
}

// NewContactPanel creates a stopped panel. Call Start to begin loading.
func NewContactPanel(deps ContactPanelDeps, opts ContactPanelOptions) *ContactPanel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultContactPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &ContactPanel{
		deps:      deps,
		opts:      opts,
		gradients: NewGradientCache(),
		group:     safego.NewGroup(deps.Logger),
		tenantID:  opts.TenantID,
		overlays:  domain.NewOverlays(),
		pins:      make(map[string]unreadPin),
	}
}

// OnChange registers a listener called with a fresh state after every applied change.
// Listeners run on the goroutine that made the change and must not block.
func (p *ContactPanel) OnChange(fn func(ContactPanelState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start loads once and then polls until Stop. A panel can be started once.
func (p *ContactPanel) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrPanelStopped
	}
	if p.started {
		p.mu.Unlock()
		return errors.New("contact panel already started")
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.WithValue(ctx, contextkeys.PanelKey, metrics.PanelContacts))
	panelCtx := p.ctx
	p.mu.Unlock()

	metrics.IncrementActivePanels(metrics.PanelContacts)
	p.deps.Logger.Info(panelCtx, "Contact panel started", "tenant_id", p.TenantID(), "poll_interval", p.opts.PollInterval.String())

	p.Reload()
	p.group.Go(panelCtx, "ContactPanelPoller", func() { p.pollLoop(panelCtx) })
	return nil
}

func (p *ContactPanel) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if !paused {
				p.Reload()
			}
		}
	}
}

// Stop cancels polling and discards the result of any load still in flight.
// It is safe to call more than once.
func (p *ContactPanel) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	wasStarted := p.started
	cancel := p.cancel
	ctx := p.ctx
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.group.CloseAndWait()
	if wasStarted {
		metrics.DecrementActivePanels(metrics.PanelContacts)
		p.deps.Logger.Info(ctx, "Contact panel stopped")
	}
}

// Pause suspends polling without tearing the panel down.
func (p *ContactPanel) Pause() {
	p.mu.Lock()
	changed := !p.paused
	p.paused = true
	p.mu.Unlock()
	if changed {
		p.notify()
	}
}

// Resume restarts polling and reloads immediately.
func (p *ContactPanel) Resume() {
	p.mu.Lock()
	changed := p.paused
	p.paused = false
	p.mu.Unlock()
	if changed {
		p.notify()
		p.Reload()
	}
}

// Reload triggers a load in the background. Overlapping loads are allowed;
// a result is applied only if no later-issued load has already been applied.
func (p *ContactPanel) Reload() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.issuedGen++
	gen := p.issuedGen
	tenant := p.tenantID
	ctx := p.ctx
	p.inFlight++
	p.mu.Unlock()

	if !p.group.Go(ctx, "ContactPanelLoad", func() { p.load(ctx, gen, tenant) }) {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}
}

// SetTenant rescopes the panel and reloads immediately. Results of loads
// issued for the previous tenant are discarded.
func (p *ContactPanel) SetTenant(tenantID string) {
	p.mu.Lock()
	if p.tenantID == tenantID {
		p.mu.Unlock()
		p.Reload()
		return
	}
	p.tenantID = tenantID
	p.contacts = nil
	p.overlays = domain.NewOverlays()
	p.storeUnread = nil
	p.pins = make(map[string]unreadPin)
	p.lastErr = nil
	p.appliedGen = p.issuedGen
	p.mu.Unlock()

	p.notify()
	p.Reload()
}

// TenantID returns the tenant the panel is scoped to ("" = all tenants).
func (p *ContactPanel) TenantID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tenantID
}

func (p *ContactPanel) load(ctx context.Context, gen uint64, tenant string) {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	contacts, lastTimes, unread, err := fetchContactInputs(fetchCtx, p.deps, tenant)
	cancel()
	metrics.ObservePanelRefreshDuration(metrics.PanelContacts, time.Since(start).Seconds())

	p.mu.Lock()
	p.inFlight--
	if p.stopped || gen <= p.appliedGen || tenant != p.tenantID {
		p.mu.Unlock()
		metrics.IncrementPanelRefresh(metrics.PanelContacts, "discarded")
		return
	}
	p.appliedGen = gen

	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		metrics.IncrementPanelRefresh(metrics.PanelContacts, "failed")
		p.deps.Logger.Warn(ctx, "Contact panel load failed; keeping previous list", "error", err.Error(), "generation", gen)
		p.notify()
		return
	}

	p.contacts = contacts
	if unread != nil {
		p.overlays.Unread = p.mergeUnreadLocked(unread, gen)
		p.storeUnread = unread
	}
	for id, ts := range lastTimes {
		if cur, ok := p.overlays.LastMessageAt[id]; !ok || ts.After(cur) {
			p.overlays.LastMessageAt[id] = ts
		}
	}
	p.lastErr = nil
	p.loadedAt = time.Now()
	p.mu.Unlock()

	for _, c := range contacts {
		p.gradients.Get(c.ID)
	}
	metrics.IncrementPanelRefresh(metrics.PanelContacts, "applied")
	p.deps.Logger.Debug(ctx, "Contact panel load applied", "contacts", len(contacts), "generation", gen)
	p.notify()
}

// mergeUnreadLocked overlays the pinned counts on a store snapshot fetched by
// load gen. A pin is released once a later-issued load reports a store count
// different from the one the pin was set against.
func (p *ContactPanel) mergeUnreadLocked(store map[string]int, gen uint64) map[string]int {
	merged := make(map[string]int, len(store)+len(p.pins))
	for id, n := range store {
		merged[id] = n
	}
	for id, pin := range p.pins {
		if gen > pin.gen && store[id] != pin.baseline {
			delete(p.pins, id)
			continue
		}
		merged[id] = pin.count
	}
	return merged
}

// pinUnreadLocked sets a local unread count that polled store counts cannot
// silently undo.
func (p *ContactPanel) pinUnreadLocked(contactID string, count int) {
	p.overlays.Unread[contactID] = count
	p.pins[contactID] = unreadPin{count: count, baseline: p.storeUnread[contactID], gen: p.issuedGen}
}

// fetchContactInputs loads the contact list and both overlay seeds. Any
// error aborts the whole load.
func fetchContactInputs(ctx context.Context, deps ContactPanelDeps, tenant string) ([]domain.Contact, map[string]time.Time, map[string]int, error) {
	contacts, err := deps.Contacts.GetFilteredUsers(ctx, tenant)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch contacts: %w", err)
	}

	var lastTimes map[string]time.Time
	if deps.Messages != nil {
		if lastTimes, err = deps.Messages.LastMessageTimes(ctx, tenant); err != nil {
			return nil, nil, nil, fmt.Errorf("fetch last message times: %w", err)
		}
	}

	var unread map[string]int
	if deps.Unread != nil {
		if unread, err = deps.Unread.UnreadCounts(ctx, tenant); err != nil {
			return nil, nil, nil, fmt.Errorf("fetch unread counts: %w", err)
		}
	}
	return contacts, lastTimes, unread, nil
}

// UpdateUnread sets the unread counter of a contact and, when at is newer
// than what is known, its last-message time.
func (p *ContactPanel) UpdateUnread(contactID string, count int, at *time.Time) {
	if count < 0 {
		count = 0
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.pinUnreadLocked(contactID, count)
	if at != nil && !at.IsZero() {
		if cur, ok := p.overlays.LastMessageAt[contactID]; !ok || at.After(cur) {
			p.overlays.LastMessageAt[contactID] = *at
		}
	}
	p.mu.Unlock()
	p.notify()
}

// Select clears the unread counter of a contact, persists the read-state and
// invokes the OnSelect callback. The local counter stays cleared even when
// persisting fails.
func (p *ContactPanel) Select(ctx context.Context, contactID string) (domain.Contact, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.Contact{}, domain.ErrPanelStopped
	}
	idx := slices.IndexFunc(p.contacts, func(c domain.Contact) bool { return c.ID == contactID })
	if idx < 0 {
		p.mu.Unlock()
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrContactNotFound, contactID)
	}
	contact := p.contacts[idx]
	p.pinUnreadLocked(contactID, 0)
	tenant := p.tenantID
	p.mu.Unlock()

	p.notify()

	var persistErr error
	if p.deps.Unread != nil {
		if err := p.deps.Unread.MarkRead(ctx, tenant, contactID); err != nil {
			p.deps.Logger.Error(ctx, "Failed to persist read state", "contact_id", contactID, "error", err.Error())
			persistErr = fmt.Errorf("persist read state: %w", err)
		}
	}
	if p.opts.OnSelect != nil {
		p.opts.OnSelect(contact)
	}
	return contact, persistErr
}

// Gradient returns the avatar gradient of a contact.
func (p *ContactPanel) Gradient(contactID string) string {
	return p.gradients.Get(contactID)
}

// State returns a copy of the current state.
func (p *ContactPanel) State() ContactPanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *ContactPanel) stateLocked() ContactPanelState {
	gradients := make(map[string]string, len(p.contacts))
	for _, c := range p.contacts {
		gradients[c.ID] = p.gradients.Get(c.ID)
	}
	return ContactPanelState{
		TenantID:  p.tenantID,
		Contacts:  slices.Clone(p.contacts),
		Overlays:  p.overlays.Clone(),
		Gradients: gradients,
		LastError: p.lastErr,
		Loading:   p.inFlight > 0,
		Paused:    p.paused,
		LoadedAt:  p.loadedAt,
	}
}

func (p *ContactPanel) notify() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	state := p.stateLocked()
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
