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
	defaultAnalyticsRefreshInterval = 30 * time.Second
	defaultAnalyticsSettleDelay     = 2 * time.Second

	pushSourceMessages = "messages"
)

// AnalyticsPanelDeps are the collaborators of an AnalyticsPanel. Changes is
// optional; without it the panel only refreshes on its timer.
type AnalyticsPanelDeps struct {
	Messages domain.MessageRepository
	Changes  domain.MessageChangeSubscriber
	Logger   domain.Logger
}

// AnalyticsPanelOptions configure an AnalyticsPanel.
type AnalyticsPanelOptions struct {
	TenantID        string
	RefreshInterval time.Duration
	SettleDelay     time.Duration
	FetchTimeout    time.Duration
	// Now is the clock used for window computation. Defaults to time.Now.
	Now func() time.Time
}

// AnalyticsState is a copy of the panel state handed to listeners.
type AnalyticsState struct {
	TenantID   string
	Snapshot   domain.AnalyticsSnapshot
	Connection domain.ConnectionState
	LastError  error
}

// splice is an activity item prepended to the feed by a realtime INSERT,
// tagged with the refresh generation issued when it arrived.
type splice struct {
	item domain.ActivityItem
	gen  uint64
}

// AnalyticsPanel keeps a 24h snapshot of message activity, recomputed on a
// timer and shortly after every accepted realtime change.
type AnalyticsPanel struct {
	deps AnalyticsPanelDeps
	opts AnalyticsPanelOptions

	group *safego.Group

	mu           sync.Mutex
	tenantID     string
	snapshot     domain.AnalyticsSnapshot
	connection   domain.ConnectionState
	lastErr      error
	issuedGen    uint64
	appliedGen   uint64
	subscription domain.Subscription
	splices      []splice
	realtimeDown bool
	settleTimer  *time.Timer
	started      bool
	stopped      bool
	ctx          context.Context
	cancel       context.CancelFunc
	listeners    []func(AnalyticsState)
}

// NewAnalyticsPanel creates a stopped panel. Call Start to begin refreshing.
func NewAnalyticsPanel(deps AnalyticsPanelDeps, opts AnalyticsPanelOptions) *AnalyticsPanel {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultAnalyticsRefreshInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultAnalyticsSettleDelay
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AnalyticsPanel{
		deps:       deps,
		opts:       opts,
		group:      safego.NewGroup(deps.Logger),
		tenantID:   opts.TenantID,
		connection: domain.ConnectionConnecting,
		snapshot:   domain.AnalyticsSnapshot{RecentActivity: []domain.ActivityItem{}},
	}
}

// OnChange registers a listener called after every snapshot or connection change.
func (p *AnalyticsPanel) OnChange(fn func(AnalyticsState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start refreshes once in the background, subscribes to message changes and
// refreshes every RefreshInterval until Stop.
func (p *AnalyticsPanel) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrPanelStopped
	}
	if p.started {
		p.mu.Unlock()
		return errors.New("analytics panel already started")
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.WithValue(ctx, contextkeys.PanelKey, metrics.PanelAnalytics))
	panelCtx := p.ctx
	tenant := p.tenantID
	p.mu.Unlock()

	metrics.IncrementActivePanels(metrics.PanelAnalytics)
	p.deps.Logger.Info(panelCtx, "Analytics panel started", "tenant_id", tenant, "refresh_interval", p.opts.RefreshInterval.String())

	p.group.Go(panelCtx, "AnalyticsPanelInitialRefresh", func() { _ = p.Refresh(panelCtx) })
	p.subscribe(panelCtx, tenant)
	p.group.Go(panelCtx, "AnalyticsPanelTicker", func() { p.tickLoop(panelCtx) })
	return nil
}

func (p *AnalyticsPanel) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}

func (p *AnalyticsPanel) subscribe(ctx context.Context, tenant string) {
	if p.deps.Changes == nil {
		return
	}
	sub, err := p.deps.Changes.SubscribeMessageChanges(ctx, tenant, p.HandleChange)
	if err != nil {
		p.deps.Logger.Error(ctx, "Failed to subscribe to message changes; relying on periodic refresh",
			"tenant_id", tenant, "error", err.Error())
		p.mu.Lock()
		p.realtimeDown = true
		p.connection = domain.ConnectionDegraded
		p.mu.Unlock()
		p.notify()
		return
	}

	p.mu.Lock()
	if p.stopped || p.tenantID != tenant {
		p.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	p.subscription = sub
	p.mu.Unlock()
}

// Stop cancels the timer, any pending settle recompute and the change
// subscription. It is safe to call more than once.
func (p *AnalyticsPanel) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	wasStarted := p.started
	cancel := p.cancel
	ctx := p.ctx
	sub := p.subscription
	p.subscription = nil
	if p.settleTimer != nil {
		p.settleTimer.Stop()
		p.settleTimer = nil
	}
	p.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			p.deps.Logger.Warn(ctx, "Failed to unsubscribe from message changes", "error", err.Error())
		}
	}
	if cancel != nil {
		cancel()
	}
	p.group.CloseAndWait()
	if wasStarted {
		metrics.DecrementActivePanels(metrics.PanelAnalytics)
		p.deps.Logger.Info(ctx, "Analytics panel stopped")
	}
}

// Refresh runs the four message queries and replaces the snapshot. On any
// error the previous snapshot is kept and the connection is marked degraded.
// The connection also stays degraded while the change subscription is down.
func (p *AnalyticsPanel) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrPanelStopped
	}
	p.issuedGen++
	gen := p.issuedGen
	tenant := p.tenantID
	p.mu.Unlock()

	start := time.Now()
	now := p.opts.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	inputs, err := fetchAnalyticsInputs(fetchCtx, p.deps.Messages, tenant, domain.WindowStart(now))
	cancel()
	metrics.ObservePanelRefreshDuration(metrics.PanelAnalytics, time.Since(start).Seconds())

	p.mu.Lock()
	if p.stopped || gen <= p.appliedGen || tenant != p.tenantID {
		p.mu.Unlock()
		metrics.IncrementPanelRefresh(metrics.PanelAnalytics, "discarded")
		return nil
	}
	p.appliedGen = gen
	if err != nil {
		p.connection = domain.ConnectionDegraded
		p.lastErr = err
		p.mu.Unlock()
		metrics.IncrementPanelRefresh(metrics.PanelAnalytics, "failed")
		p.deps.Logger.Warn(ctx, "Analytics refresh failed; keeping previous snapshot", "tenant_id", tenant, "error", err.Error())
		p.notify()
		return err
	}
	p.snapshot = domain.ComputeSnapshot(inputs, now)
	p.replaySplicesLocked(gen)
	p.connection = domain.ConnectionConnected
	if p.realtimeDown {
		p.connection = domain.ConnectionDegraded
	}
	p.lastErr = nil
	p.mu.Unlock()

	metrics.IncrementPanelRefresh(metrics.PanelAnalytics, "applied")
	p.notify()
	return nil
}

// replaySplicesLocked prepends the splices a refresh issued at gen could not
// have seen. Older splices are covered by the refresh and forgotten.
func (p *AnalyticsPanel) replaySplicesLocked(gen uint64) {
	kept := p.splices[:0]
	for _, sp := range p.splices {
		if sp.gen < gen {
			continue
		}
		kept = append(kept, sp)
		p.snapshot.RecentActivity = domain.PrependActivity(p.snapshot.RecentActivity, sp.item, domain.ActivityFeedLimit)
	}
	p.splices = kept
}

// fetchAnalyticsInputs runs the four independent message queries.
func fetchAnalyticsInputs(ctx context.Context, messages domain.MessageRepository, tenant string, since time.Time) (domain.AnalyticsInputs, error) {
	var (
		in  domain.AnalyticsInputs
		err error
	)
	if in.Responded, err = messages.ListResponded(ctx, since, tenant); err != nil {
		return in, fmt.Errorf("list responded messages: %w", err)
	}
	if in.ChatActivity, err = messages.ListChatActivity(ctx, since, tenant); err != nil {
		return in, fmt.Errorf("list chat activity: %w", err)
	}
	if in.UserActivity, err = messages.ListUserActivity(ctx, since, tenant); err != nil {
		return in, fmt.Errorf("list user activity: %w", err)
	}
	if in.Recent, err = messages.ListRecent(ctx, tenant, domain.ActivityFeedLimit); err != nil {
		return in, fmt.Errorf("list recent messages: %w", err)
	}
	return in, nil
}

// HandleChange applies a realtime change. Events of another tenant are
// dropped. An INSERT is spliced into the activity feed right away, and every
// accepted event schedules one authoritative recompute after SettleDelay.
func (p *AnalyticsPanel) HandleChange(evt domain.ChangeEvent) {
	p.mu.Lock()
	if p.stopped || !p.started {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	if p.tenantID != "" && evt.RowTenant() != p.tenantID {
		p.mu.Unlock()
		metrics.IncrementPushEvents(pushSourceMessages, "rejected")
		p.deps.Logger.Debug(ctx, "Ignoring message change of another tenant", "event_id", evt.EventID, "event_tenant", evt.RowTenant())
		return
	}

	spliced := false
	if evt.Type == domain.ChangeInsert && evt.New != nil {
		item := domain.ProjectActivity(*evt.New)
		p.snapshot.RecentActivity = domain.PrependActivity(p.snapshot.RecentActivity, item, domain.ActivityFeedLimit)
		p.splices = append(p.splices, splice{item: item, gen: p.issuedGen})
		if len(p.splices) > domain.ActivityFeedLimit {
			p.splices = p.splices[len(p.splices)-domain.ActivityFeedLimit:]
		}
		spliced = true
	}
	p.scheduleSettleLocked()
	p.mu.Unlock()

	metrics.IncrementPushEvents(pushSourceMessages, "applied")
	if spliced {
		p.notify()
	}
}

// scheduleSettleLocked (re)arms the settle timer so bursts collapse into one recompute.
func (p *AnalyticsPanel) scheduleSettleLocked() {
	if p.settleTimer != nil {
		p.settleTimer.Stop()
	}
	ctx := p.ctx
	p.settleTimer = time.AfterFunc(p.opts.SettleDelay, func() {
		p.group.Go(ctx, "AnalyticsPanelSettleRefresh", func() { _ = p.Refresh(ctx) })
	})
}

// SetTenant rescopes the panel, resubscribes with the new tenant filter and
// refreshes immediately.
func (p *AnalyticsPanel) SetTenant(tenantID string) {
	p.mu.Lock()
	if p.stopped || p.tenantID == tenantID {
		p.mu.Unlock()
		return
	}
	p.tenantID = tenantID
	p.appliedGen = p.issuedGen
	p.snapshot = domain.AnalyticsSnapshot{RecentActivity: []domain.ActivityItem{}}
	p.splices = nil
	p.connection = domain.ConnectionConnecting
	p.lastErr = nil
	p.realtimeDown = false
	if p.settleTimer != nil {
		p.settleTimer.Stop()
		p.settleTimer = nil
	}
	oldSub := p.subscription
	p.subscription = nil
	started := p.started
	ctx := p.ctx
	p.mu.Unlock()

	if oldSub != nil {
		if err := oldSub.Unsubscribe(); err != nil {
			p.deps.Logger.Warn(ctx, "Failed to unsubscribe previous tenant", "error", err.Error())
		}
	}
	p.notify()
	if !started {
		return
	}
	p.subscribe(ctx, tenantID)
	p.group.Go(ctx, "AnalyticsPanelTenantRefresh", func() { _ = p.Refresh(ctx) })
}

// TenantID returns the tenant the panel is scoped to ("" = all tenants).
func (p *AnalyticsPanel) TenantID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tenantID
}

// Snapshot returns a copy of the current snapshot.
func (p *AnalyticsPanel) Snapshot() domain.AnalyticsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Clone()
}

// Connection returns the current connection indicator.
func (p *AnalyticsPanel) Connection() domain.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connection
}

// State returns a copy of the full panel state.
func (p *AnalyticsPanel) State() AnalyticsState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *AnalyticsPanel) stateLocked() AnalyticsState {
	return AnalyticsState{
		TenantID:   p.tenantID,
		Snapshot:   p.snapshot.Clone(),
		Connection: p.connection,
		LastError:  p.lastErr,
	}
}

func (p *AnalyticsPanel) notify() {
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
