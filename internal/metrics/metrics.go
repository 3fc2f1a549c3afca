// Package metrics exposes livegrid's Prometheus instrumentation.
//
// Components receive a *Metrics and record into it unconditionally. When
// metrics are disabled every field is a no-op, so callers never branch on
// whether Prometheus is wired.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livegrid"

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
}

// NoopStat satisfies Counter and Gauge and discards everything.
type NoopStat struct{}

func (NoopStat) Inc()        {}
func (NoopStat) Dec()        {}
func (NoopStat) Add(float64) {}
func (NoopStat) Set(float64) {}

// Metrics groups every collector livegrid records into.
type Metrics struct {
	RefreshTicks    Counter
	RefreshFailures Counter
	RecordsChanged  Counter
	RecordsInserted Counter

	Publishes         Counter
	DispatchTasks     Counter
	DispatchFailures  Counter
	DispatchSlow      Counter
	DispatchSkipped   Counter
	PrunedSubscribers Counter
	Subscribers       Gauge

	StoreRecords Gauge

	registry *prometheus.Registry
}

// Noop returns a Metrics whose collectors do nothing.
func Noop() *Metrics {
	return &Metrics{
		RefreshTicks:      NoopStat{},
		RefreshFailures:   NoopStat{},
		RecordsChanged:    NoopStat{},
		RecordsInserted:   NoopStat{},
		Publishes:         NoopStat{},
		DispatchTasks:     NoopStat{},
		DispatchFailures:  NoopStat{},
		DispatchSlow:      NoopStat{},
		DispatchSkipped:   NoopStat{},
		PrunedSubscribers: NoopStat{},
		Subscribers:       NoopStat{},
		StoreRecords:      NoopStat{},
	}
}

// New creates a Metrics backed by a fresh Prometheus registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counter := func(subsystem, name, help string) Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	gauge := func(subsystem, name, help string) Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(g)
		return g
	}

	return &Metrics{
		RefreshTicks:      counter("refresh", "ticks_total", "Refresh ticks executed."),
		RefreshFailures:   counter("refresh", "failures_total", "Refresh ticks that failed."),
		RecordsChanged:    counter("refresh", "records_changed_total", "Record names reported in change batches."),
		RecordsInserted:   counter("refresh", "records_inserted_total", "New records inserted by the refresh worker."),
		Publishes:         counter("broadcast", "publishes_total", "Change batches published."),
		DispatchTasks:     counter("broadcast", "dispatch_tasks_total", "Per-subscriber notification tasks executed."),
		DispatchFailures:  counter("broadcast", "dispatch_failures_total", "Subscriber notifications that panicked."),
		DispatchSlow:      counter("broadcast", "dispatch_slow_total", "Subscriber notifications that exceeded the dispatch timeout."),
		DispatchSkipped:   counter("broadcast", "dispatch_skipped_total", "Notifications skipped while an earlier call to the same subscriber was still running."),
		PrunedSubscribers: counter("broadcast", "pruned_subscribers_total", "Stale subscriber registrations removed."),
		Subscribers:       gauge("broadcast", "subscribers", "Currently registered subscribers."),
		StoreRecords:      gauge("store", "records", "Records held in the store."),
		registry:          reg,
	}
}

// Registry returns the backing registry, or nil for a no-op Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format. A no-op Metrics answers 404.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrNoop returns m, or a no-op Metrics when m is nil.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return Noop()
	}
	return m
}
