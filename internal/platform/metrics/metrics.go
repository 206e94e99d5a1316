package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the presentation core.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	broadcastsTotal      prometheus.Counter
	replaysTotal         prometheus.Counter
	joinsTotal           prometheus.Counter
	transportErrorsTotal prometheus.Counter
	persistErrorsTotal   prometheus.Counter
	errorsTotal          prometheus.Counter
	connectedViewers     prometheus.Gauge
	readyOutputs         prometheus.Gauge
	activeRooms          prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_requests_total",
		Help: "Total number of HTTP requests received",
	})
	broadcastsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_broadcasts_total",
		Help: "Total number of state events fanned out to consumers",
	})
	replaysTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_replays_total",
		Help: "Total number of full snapshot replays sent to joining consumers",
	})
	joinsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_room_joins_total",
		Help: "Total number of successful room joins",
	})
	transportErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_transport_errors_total",
		Help: "Total number of sends skipped because a consumer vanished",
	})
	persistErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_persist_errors_total",
		Help: "Total number of failed asynchronous persistence writes",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presentsync_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	connectedViewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presentsync_connected_viewers",
		Help: "Number of network viewers currently connected",
	})
	readyOutputs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presentsync_ready_outputs",
		Help: "Number of local display outputs in the ready state",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presentsync_active_rooms",
		Help: "Number of rooms that are active and not expired",
	})

	registry.MustRegister(
		requestsTotal,
		broadcastsTotal,
		replaysTotal,
		joinsTotal,
		transportErrorsTotal,
		persistErrorsTotal,
		errorsTotal,
		connectedViewers,
		readyOutputs,
		activeRooms,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		broadcastsTotal:      broadcastsTotal,
		replaysTotal:         replaysTotal,
		joinsTotal:           joinsTotal,
		transportErrorsTotal: transportErrorsTotal,
		persistErrorsTotal:   persistErrorsTotal,
		errorsTotal:          errorsTotal,
		connectedViewers:     connectedViewers,
		readyOutputs:         readyOutputs,
		activeRooms:          activeRooms,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncBroadcasts increments the fan-out event counter.
func (m *Metrics) IncBroadcasts() {
	m.broadcastsTotal.Inc()
}

// IncReplays increments the snapshot replay counter.
func (m *Metrics) IncReplays() {
	m.replaysTotal.Inc()
}

// IncJoins increments the successful join counter.
func (m *Metrics) IncJoins() {
	m.joinsTotal.Inc()
}

// IncTransportErrors increments the skipped-send counter.
func (m *Metrics) IncTransportErrors() {
	m.transportErrorsTotal.Inc()
}

// IncPersistErrors increments the failed async persistence counter.
func (m *Metrics) IncPersistErrors() {
	m.persistErrorsTotal.Inc()
}

// IncErrors increments the HTTP errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetConnectedViewers sets the connected viewers gauge.
func (m *Metrics) SetConnectedViewers(n int) {
	m.connectedViewers.Set(float64(n))
}

// SetReadyOutputs sets the ready outputs gauge.
func (m *Metrics) SetReadyOutputs(n int) {
	m.readyOutputs.Set(float64(n))
}

// SetActiveRooms sets the active rooms gauge.
func (m *Metrics) SetActiveRooms(n int) {
	m.activeRooms.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
