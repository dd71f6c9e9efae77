package monitoring

import (
	"strconv"

	"novaled/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records live-session and connection metrics. It
// implements ports.LiveObserver.
type PrometheusCollector struct {
	broadcastsStarted *prometheus.CounterVec
	broadcastsStopped *prometheus.CounterVec
	startsRejected    *prometheus.CounterVec
	cooldownsStarted  prometheus.Counter
	storeErrors       *prometheus.CounterVec

	broadcastDuration prometheus.Histogram
	rosterSize        prometheus.Histogram

	livesActive       prometheus.Gauge
	livesReaped       prometheus.Counter
	websocketClients  prometheus.Gauge
	websocketMessages *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg. A nil reg uses the
// default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		broadcastsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novaled_broadcasts_started_total",
			Help: "Broadcasts started, by whether the user is privileged",
		}, []string{"privileged"}),

		broadcastsStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novaled_broadcasts_stopped_total",
			Help: "Broadcasts stopped, by reason",
		}, []string{"reason"}),

		startsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novaled_broadcast_starts_rejected_total",
			Help: "Start attempts rejected before going live, by reason",
		}, []string{"reason"}),

		cooldownsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "novaled_cooldowns_started_total",
			Help: "Cooldown windows entered after a broadcast",
		}),

		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novaled_store_errors_total",
			Help: "Failed session store operations seen by live sessions",
		}, []string{"op"}),

		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "novaled_broadcast_duration_seconds",
			Help:    "How long broadcasts ran",
			Buckets: []float64{10, 30, 60, 120, 300, 540, 600, 1800, 3600},
		}),

		rosterSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "novaled_roster_size",
			Help:    "Number of other broadcasts visible on each roster update",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),

		livesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "novaled_lives_active",
			Help: "Live records in the store at the last reaper scan",
		}),

		livesReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "novaled_lives_reaped_total",
			Help: "Stale live records removed by the reaper",
		}),

		websocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "novaled_websocket_clients",
			Help: "Connected WebSocket clients",
		}),

		websocketMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novaled_websocket_messages_total",
			Help: "WebSocket messages received, by type",
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) BroadcastStarted(privileged bool) {
	p.broadcastsStarted.WithLabelValues(strconv.FormatBool(privileged)).Inc()
}

func (p *PrometheusCollector) BroadcastStopped(reason domain.StopReason, duration float64) {
	p.broadcastsStopped.WithLabelValues(string(reason)).Inc()
	p.broadcastDuration.Observe(duration)
}

func (p *PrometheusCollector) StartRejected(reason string) {
	p.startsRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) CooldownStarted() {
	p.cooldownsStarted.Inc()
}

func (p *PrometheusCollector) RosterUpdated(size int) {
	p.rosterSize.Observe(float64(size))
}

func (p *PrometheusCollector) StoreError(op string) {
	p.storeErrors.WithLabelValues(op).Inc()
}

// RecordReap is called after each reaper scan.
func (p *PrometheusCollector) RecordReap(live, reaped int) {
	p.livesActive.Set(float64(live - reaped))
	p.livesReaped.Add(float64(reaped))
}

func (p *PrometheusCollector) ClientConnected() {
	p.websocketClients.Inc()
}

func (p *PrometheusCollector) ClientDisconnected() {
	p.websocketClients.Dec()
}

func (p *PrometheusCollector) RecordMessage(messageType string) {
	p.websocketMessages.WithLabelValues(messageType).Inc()
}
