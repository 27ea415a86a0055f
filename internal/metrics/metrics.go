// Package metrics exposes Prometheus instrumentation for the watch loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marginwatch/driftmd/pkg/drift"
)

// Collector tracks drift scoring activity.
type Collector struct {
	registry      *prometheus.Registry
	batchesTotal  prometheus.Counter
	driftTotal    *prometheus.CounterVec
	marginDensity prometheus.Gauge
}

// New creates a collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		batchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftmd_batches_scored_total",
			Help: "Number of batches scored for margin density.",
		}),
		driftTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmd_drift_total",
			Help: "Number of drift verdicts, by violated range side.",
		}, []string{"direction"}),
		marginDensity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftmd_margin_density",
			Help: "Margin density of the most recently scored batch.",
		}),
	}
}

// Observe records one drift report.
func (c *Collector) Observe(result drift.Result) {
	c.batchesTotal.Inc()
	c.marginDensity.Set(result.Data.MarginDensity)
	if result.Data.Direction != nil {
		c.driftTotal.WithLabelValues(string(*result.Data.Direction)).Inc()
	}
}

// Handler returns an HTTP handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
