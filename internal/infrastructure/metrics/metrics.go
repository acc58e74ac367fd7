package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/labthings-core/internal/action"
)

const namespace = "labthings"

// Collector turns action snapshots into Prometheus series.
//
// Thread Safety: Observe may be called concurrently from many actions.
type Collector struct {
	registry *prometheus.Registry

	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	running  *prometheus.GaugeVec
	duration *prometheus.HistogramVec

	mu sync.Mutex
	// live holds the IDs counted as running and not yet finished.
	live map[string]struct{}
}

// New creates a Collector with its own registry. Go runtime and process
// collectors are registered alongside the action series.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		started: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_started_total",
				Help:      "Actions whose body began running.",
			},
			[]string{"action"},
		),
		finished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_finished_total",
				Help:      "Actions that reached a terminal status.",
			},
			[]string{"action", "status"},
		),
		running: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "actions_running",
				Help:      "Actions currently running.",
			},
			[]string{"action"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Wall time from body start to terminal status.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"action"},
		),
		live: make(map[string]struct{}),
	}
}

// Observe is an action.Observer. Progress and data updates are ignored; only
// the transitions into running and into a terminal status are counted.
func (c *Collector) Observe(s action.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, live := c.live[s.ID]

	switch {
	case s.Status == action.StatusRunning && !live:
		c.live[s.ID] = struct{}{}
		c.started.WithLabelValues(s.Action).Inc()
		c.running.WithLabelValues(s.Action).Inc()

	case s.Status.Terminal():
		if live {
			delete(c.live, s.ID)
			c.running.WithLabelValues(s.Action).Dec()
		}
		c.finished.WithLabelValues(s.Action, string(s.Status)).Inc()
		if s.TimeStarted != nil && s.TimeCompleted != nil {
			c.duration.WithLabelValues(s.Action).Observe(s.TimeCompleted.Sub(*s.TimeStarted).Seconds())
		}
	}
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
