// Package metrics exposes print queue activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wiffzack/printspool/internal/core"
)

const namespace = "printspool"

// StatsSource is satisfied by *core.Queue.
type StatsSource interface {
	Stats() core.QueueStats
}

// Collector records job events and samples queue depth on scrape. It owns
// its registry so tests and embedders do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	jobEvents   *prometheus.CounterVec
	jobsDropped *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

func New(stats StatsSource) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Print job lifecycle events by type and output kind.",
		}, []string{"event", "output"}),
		jobsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dropped_total",
			Help:      "Print jobs given up on, by error kind.",
		}, []string{"error_kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent on one processing attempt.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"output", "result"}),
	}

	c.registry.MustRegister(
		c.jobEvents,
		c.jobsDropped,
		c.jobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if stats != nil {
		gauge := func(name, help string, read func(core.QueueStats) int) prometheus.GaugeFunc {
			return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(read(stats.Stats())) })
		}
		c.registry.MustRegister(
			gauge("depth", "Jobs waiting to be processed.", func(s core.QueueStats) int { return s.Queued }),
			gauge("in_flight", "Jobs being processed.", func(s core.QueueStats) int { return s.InFlight }),
			gauge("delayed", "Jobs waiting out a retry delay.", func(s core.QueueStats) int { return s.Delayed }),
		)
	}
	return c
}

func (c *Collector) OnJobEvent(ev core.JobEvent) {
	output := string(ev.Job.Output)
	c.jobEvents.WithLabelValues(string(ev.Type), output).Inc()

	switch ev.Type {
	case core.EventJobCompleted:
		c.jobDuration.WithLabelValues(output, "success").Observe(ev.Duration.Seconds())
	case core.EventJobRetrying:
		c.jobDuration.WithLabelValues(output, "error").Observe(ev.Duration.Seconds())
	case core.EventJobFailed:
		c.jobDuration.WithLabelValues(output, "error").Observe(ev.Duration.Seconds())
		c.jobsDropped.WithLabelValues(string(core.Classify(ev.Err))).Inc()
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
