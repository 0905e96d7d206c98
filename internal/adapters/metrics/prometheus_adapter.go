package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Panel names used as metric labels.
const (
	PanelContacts  = "contacts"
	PanelAnalytics = "analytics"
)

var (
	ActivePanelsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dps_active_panels",
			Help: "Number of running panel instances.",
		},
		[]string{"panel"},
	)

	ActivePanelSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dps_active_panel_sessions",
			Help: "Number of open dashboard panel sessions (one per WebSocket).",
		},
	)

	PanelRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dps_panel_refresh_total",
			Help: "Panel refresh cycles by outcome (applied, failed, discarded).",
		},
		[]string{"panel", "result"},
	)

	PanelRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dps_panel_refresh_duration_seconds",
			Help:    "Time spent fetching and recomputing a panel.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"panel"},
	)

	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dps_push_events_total",
			Help: "Realtime push events by source and outcome (applied, rejected, malformed).",
		},
		[]string{"source", "result"},
	)

	WebsocketMessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dps_websocket_messages_sent_total",
			Help: "Messages written to dashboard WebSockets by type.",
		},
		[]string{"type"},
	)

	WebsocketMessagesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dps_websocket_messages_dropped_total",
			Help: "Messages dropped because a client's send buffer was full.",
		},
	)
)

// IncrementActivePanels increments the running panel gauge.
func IncrementActivePanels(panel string) {
	ActivePanelsGauge.WithLabelValues(panel).Inc()
}

// DecrementActivePanels decrements the running panel gauge.
func DecrementActivePanels(panel string) {
	ActivePanelsGauge.WithLabelValues(panel).Dec()
}

// IncrementPanelRefresh counts one refresh outcome.
func IncrementPanelRefresh(panel, result string) {
	PanelRefreshTotal.WithLabelValues(panel, result).Inc()
}

// ObservePanelRefreshDuration records a refresh duration in seconds.
func ObservePanelRefreshDuration(panel string, seconds float64) {
	PanelRefreshDuration.WithLabelValues(panel).Observe(seconds)
}

// IncrementPushEvents counts one push event outcome.
func IncrementPushEvents(source, result string) {
	PushEventsTotal.WithLabelValues(source, result).Inc()
}

// IncrementMessagesSent counts one WebSocket message of the given type.
func IncrementMessagesSent(messageType string) {
	WebsocketMessagesSentTotal.WithLabelValues(messageType).Inc()
}

// IncrementMessagesDropped counts one dropped WebSocket message.
func IncrementMessagesDropped() {
	WebsocketMessagesDroppedTotal.Inc()
}
