// Package metrics holds the Prometheus collectors for the overlay pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

var (
	DatasetLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_dataset_loads_total",
		Help: "Metric dataset loads by overlay and outcome",
	}, []string{"overlay", "outcome"})
	DatasetLoadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "overlay_dataset_load_seconds",
		Help:    "Metric dataset load duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"overlay"})
	DatasetRowsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_dataset_rows_skipped_total",
		Help: "Dataset rows dropped for a missing key or unparseable value",
	}, []string{"overlay"})
	GeometryLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_geometry_loads_total",
		Help: "Geometry collection loads by outcome",
	}, []string{"outcome"})
	JoinDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_join_duration_seconds",
		Help:    "Join engine duration in seconds",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	})
	SwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_switches_total",
		Help: "Overlay selection requests by result",
	}, []string{"result"})
	ViewsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "overlay_views_active",
		Help: "Mounted map views by state",
	}, []string{"state"})
	PayloadCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_payload_cache_total",
		Help: "Payload cache lookups by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(DatasetLoadsTotal)
	prometheus.MustRegister(DatasetLoadSeconds)
	prometheus.MustRegister(DatasetRowsSkippedTotal)
	prometheus.MustRegister(GeometryLoadsTotal)
	prometheus.MustRegister(JoinDurationSeconds)
	prometheus.MustRegister(SwitchesTotal)
	prometheus.MustRegister(ViewsActive)
	prometheus.MustRegister(PayloadCacheTotal)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler { return promhttp.Handler() }
