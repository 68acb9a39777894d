// ABOUTME: Prometheus instrumentation for beacon send and receive paths
// ABOUTME: A nil *Metrics is valid and records nothing
package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Discard reasons reported on lob_discovery_datagrams_discarded_total
const (
	reasonMalformed = "malformed"
	reasonQueueFull = "queue_full"
)

// Metrics holds discovery collectors
type Metrics struct {
	beaconsSent        prometheus.Counter
	sendErrors         prometheus.Counter
	datagramsReceived  prometheus.Counter
	datagramsDiscarded *prometheus.CounterVec
	receiveErrors      prometheus.Counter
	sessionsEvicted    prometheus.Counter
	sessions           prometheus.Gauge
}

// NewMetrics creates discovery collectors and registers them with reg.
// A nil reg yields unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		beaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_discovery_beacons_sent_total",
			Help: "Beacon datagrams successfully written.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_discovery_send_errors_total",
			Help: "Beacon socket open or write failures.",
		}),
		datagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_discovery_datagrams_received_total",
			Help: "Datagrams read from the discovery socket.",
		}),
		datagramsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lob_discovery_datagrams_discarded_total",
			Help: "Datagrams dropped before reaching the registry.",
		}, []string{"reason"}),
		receiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_discovery_receive_errors_total",
			Help: "Read errors on the discovery socket.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_discovery_sessions_evicted_total",
			Help: "Sessions removed for not refreshing within the staleness window.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lob_discovery_sessions",
			Help: "Sessions currently visible in the registry.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.beaconsSent,
			m.sendErrors,
			m.datagramsReceived,
			m.datagramsDiscarded,
			m.receiveErrors,
			m.sessionsEvicted,
			m.sessions,
		)
	}
	return m
}

func (m *Metrics) beaconSent() {
	if m != nil {
		m.beaconsSent.Inc()
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

func (m *Metrics) received() {
	if m != nil {
		m.datagramsReceived.Inc()
	}
}

func (m *Metrics) discarded(reason string) {
	if m != nil {
		m.datagramsDiscarded.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) receiveFailed() {
	if m != nil {
		m.receiveErrors.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil && n > 0 {
		m.sessionsEvicted.Add(float64(n))
	}
}

func (m *Metrics) visible(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}
