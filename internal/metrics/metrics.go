// Package metrics exposes sync counters for the to-do client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Write results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Recorder owns a private registry. A nil *Recorder discards everything.
type Recorder struct {
	registry  *prometheus.Registry
	snapshots prometheus.Counter
	items     prometheus.Gauge
	writes    *prometheus.CounterVec
	subErrors prometheus.Counter
	wsClients prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_snapshots_total",
			Help: "Collection snapshots applied to the in-memory list.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todo_items",
			Help: "Items in the most recent snapshot.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_writes_total",
			Help: "Store writes by operation and result.",
		}, []string{"op", "result"}),
		subErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_subscription_errors_total",
			Help: "Errors reported by the live subscription.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todo_ws_clients",
			Help: "Connected browser clients.",
		}),
	}
	r.registry.MustRegister(r.snapshots, r.items, r.writes, r.subErrors, r.wsClients)
	return r
}

func (r *Recorder) Snapshot(items int) {
	if r == nil {
		return
	}
	r.snapshots.Inc()
	r.items.Set(float64(items))
}

func (r *Recorder) Write(op, result string) {
	if r == nil {
		return
	}
	r.writes.WithLabelValues(op, result).Inc()
}

func (r *Recorder) SubscriptionError() {
	if r == nil {
		return
	}
	r.subErrors.Inc()
}

func (r *Recorder) ClientConnected() {
	if r == nil {
		return
	}
	r.wsClients.Inc()
}

func (r *Recorder) ClientDisconnected() {
	if r == nil {
		return
	}
	r.wsClients.Dec()
}

// Registry returns the underlying registry, nil for a nil Recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
