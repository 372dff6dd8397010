package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notification_hub"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HubMetrics is safe to use through a nil pointer; every recorder is then a no-op.
type HubMetrics struct {
	ActiveConnections prometheus.Gauge
	Admissions        *prometheus.CounterVec
	Removals          *prometheus.CounterVec
	Events            prometheus.Counter
	Deliveries        *prometheus.CounterVec
	Heartbeats        *prometheus.CounterVec
	Sweeps            prometheus.Counter
	Panics            *prometheus.CounterVec
}

func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently held in the registry.",
		}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Connection admission attempts by outcome.",
		}, []string{"outcome"}),
		Removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "removals_total",
			Help:      "Connections removed from the registry by reason.",
		}, []string{"reason"}),
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handed to the broadcast engine.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection event deliveries by result.",
		}, []string{"result"}),
		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat frames sent by the liveness monitor by result.",
		}, []string{"result"}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed liveness sweeps.",
		}),
		Panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered panics by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.Admissions,
		m.Removals,
		m.Events,
		m.Deliveries,
		m.Heartbeats,
		m.Sweeps,
		m.Panics,
	)
	return m
}

// ConnectionOpened and ConnectionClosed move the active gauge. Callers invoke them only on
// the path that actually inserted or removed the registry entry.
func (m *HubMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *HubMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *HubMetrics) Admission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

func (m *HubMetrics) Removal(reason string) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(reason).Inc()
}

func (m *HubMetrics) Event() {
	if m == nil {
		return
	}
	m.Events.Inc()
}

func (m *HubMetrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result(ok)).Inc()
}

func (m *HubMetrics) Heartbeat(ok bool) {
	if m == nil {
		return
	}
	m.Heartbeats.WithLabelValues(result(ok)).Inc()
}

func (m *HubMetrics) Sweep() {
	if m == nil {
		return
	}
	m.Sweeps.Inc()
}

func (m *HubMetrics) Panic(operation string) {
	if m == nil {
		return
	}
	m.Panics.WithLabelValues(operation).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
