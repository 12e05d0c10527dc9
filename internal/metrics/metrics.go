package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	registered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procman",
			Subsystem: "process",
			Name:      "registered",
			Help:      "Number of processes currently present in the registry.",
		},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Name:      "events_total",
			Help:      "Events enqueued for the director, by process and kind.",
		}, []string{"name", "kind"},
	)
	outputBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Name:      "output_bytes_total",
			Help:      "Bytes captured from process output streams.",
		}, []string{"name", "stream"},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Name:      "events_dropped_total",
			Help:      "Output events dropped because the queue limit was reached.",
		}, []string{"name"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "procman",
			Name:      "queue_depth",
			Help:      "Events waiting for the director, per process.",
		}, []string{"name"},
	)
	removals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Name:      "removals_total",
			Help:      "Registry removals by reason (stopped, director).",
		}, []string{"reason"},
	)
	directorPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procman",
			Name:      "director_passes_total",
			Help:      "Completed director visitation passes.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{registered, events, outputBytes, dropped, queueDepth, removals, directorPasses}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func SetRegistered(n int) {
	if regOK.Load() {
		registered.Set(float64(n))
	}
}

func IncEvent(name, kind string) {
	if regOK.Load() {
		events.WithLabelValues(name, kind).Inc()
	}
}

func AddOutputBytes(name, stream string, n int) {
	if regOK.Load() {
		outputBytes.WithLabelValues(name, stream).Add(float64(n))
	}
}

func IncDropped(name string) {
	if regOK.Load() {
		dropped.WithLabelValues(name).Inc()
	}
}

func SetQueueDepth(name string, n int) {
	if regOK.Load() {
		queueDepth.WithLabelValues(name).Set(float64(n))
	}
}

// ForgetProcess drops every per-process series once a name leaves the registry.
func ForgetProcess(name string) {
	if !regOK.Load() {
		return
	}
	byName := prometheus.Labels{"name": name}
	events.DeletePartialMatch(byName)
	outputBytes.DeletePartialMatch(byName)
	dropped.DeleteLabelValues(name)
	queueDepth.DeleteLabelValues(name)
}

func IncRemoval(reason string) {
	if regOK.Load() {
		removals.WithLabelValues(reason).Inc()
	}
}

func IncDirectorPass() {
	if regOK.Load() {
		directorPasses.Inc()
	}
}
