package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes gateway metrics via Prometheus.
type Recorder struct {
	connections   prometheus.Gauge
	eventsIn      *prometheus.CounterVec
	eventsSent    *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
	broadcastTime prometheus.Histogram
	disconnects   *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a recorder registered on reg. Tests pass a fresh
// registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		connections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_connections_active",
				Help: "Number of live WebSocket connections",
			},
		),
		eventsIn: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_backbone_events_total",
				Help: "Total events received from the backbone",
			},
			[]string{"channel"},
		),
		eventsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_events_delivered_total",
				Help: "Total events enqueued for delivery to connections",
			},
			[]string{"channel"},
		),
		eventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_events_dropped_total",
				Help: "Events dropped due to slow consumers, by event type",
			},
			[]string{"type"},
		),
		authFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_auth_failures_total",
				Help: "Credential verification failures by kind",
			},
			[]string{"kind"},
		),
		broadcastTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalgate_broadcast_duration_seconds",
				Help:    "Duration of registry fan-out per event",
				Buckets: prometheus.DefBuckets,
			},
		),
		disconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_disconnects_total",
				Help: "Connection closures by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordConnect increments the live-connections gauge.
func (r *Recorder) RecordConnect() { r.connections.Inc() }

// RecordDisconnect decrements the gauge and counts the close reason.
func (r *Recorder) RecordDisconnect(reason string) {
	r.connections.Dec()
	r.disconnects.WithLabelValues(reason).Inc()
}

// RecordBackboneEvent counts one event received from a channel.
func (r *Recorder) RecordBackboneEvent(channel string) {
	r.eventsIn.WithLabelValues(channel).Inc()
}

// RecordDelivered counts one event enqueued to a connection.
func (r *Recorder) RecordDelivered(channel string) {
	r.eventsSent.WithLabelValues(channel).Inc()
}

// RecordDropped counts one event dropped from a saturated queue. The
// label is the event type since drops happen after fan-out, where the
// originating channel is no longer in hand.
func (r *Recorder) RecordDropped(eventType string) {
	r.eventsDropped.WithLabelValues(eventType).Inc()
}

// RecordAuthFailure counts a verification failure by kind.
func (r *Recorder) RecordAuthFailure(kind string) {
	r.authFailures.WithLabelValues(kind).Inc()
}

// RecordBroadcastLatency records one fan-out duration in seconds.
func (r *Recorder) RecordBroadcastLatency(seconds float64) {
	r.broadcastTime.Observe(seconds)
}
