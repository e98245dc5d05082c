// Package metrics exports hlbus lifecycle events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trickstertwo/hlbus"
)

const namespace = "hlbus"

// Observer is an hlbus.Observer that records events into a Prometheus registry.
type Observer struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ hlbus.Observer = (*Observer)(nil)

// NewObserver registers the bus collectors on reg. A nil reg gets a fresh registry.
func NewObserver(reg *prometheus.Registry) *Observer {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Observer{
		registry: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Bus lifecycle events by event type and message type",
		}, []string{"event", "message_type"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Bus lifecycle events that carried an error",
		}, []string{"event", "message_type"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Duration of publishes, requests and handler runs",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"event"}),
	}
}

func (o *Observer) OnEvent(e hlbus.Event) {
	mt := e.MessageType
	if mt == "" {
		mt = "unknown"
	}
	o.events.WithLabelValues(string(e.Type), mt).Inc()
	if e.Err != nil {
		o.errors.WithLabelValues(string(e.Type), mt).Inc()
	}
	if e.Duration > 0 {
		o.duration.WithLabelValues(string(e.Type)).Observe(e.Duration.Seconds())
	}
}

// MetricsSource is satisfied by *hlbus.Bus.
type MetricsSource interface {
	GetMetrics() hlbus.Metrics
}

// WatchBus exports point-in-time bus gauges read on every scrape.
func (o *Observer) WatchBus(src MetricsSource) {
	f := promauto.With(o.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Requests waiting for a reply",
	}, func() float64 { return float64(src.GetMetrics().Pending) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observer_events_dropped",
		Help:      "Events dropped by the async observer pool",
	}, func() float64 { return float64(src.GetMetrics().EventsDropped) })
}

// Registry returns the registry collectors are registered on.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
