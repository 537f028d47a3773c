// Package monitoring exposes Prometheus metrics for a backfill run.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "listing_geocoder"

// Metrics holds the Prometheus counters, histograms, and gauges for one run.
type Metrics struct {
	RowsFetched     prometheus.Gauge
	RowsProcessed   *prometheus.CounterVec // labels: outcome={updated,no_match,skipped,quota_exhausted,failed}
	GeocodeRequests *prometheus.CounterVec // labels: result={ok,no_match,quota,transport}
	GeocodeDuration prometheus.Histogram
	QuotaBackoffs   prometheus.Counter
	RunDuration     prometheus.Gauge
	LastRunSuccess  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates all run metrics and registers them with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_fetched",
			Help:      "Listings missing coordinates at the start of the run.",
		}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Listings processed by outcome.",
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API calls by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_request_duration_seconds",
			Help:      "Geocoding API call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		QuotaBackoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_backoffs_total",
			Help:      "Times the run paused after a quota error.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run committed, 0 when it rolled back.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RowsFetched,
		m.RowsProcessed,
		m.GeocodeRequests,
		m.GeocodeDuration,
		m.QuotaBackoffs,
		m.RunDuration,
		m.LastRunSuccess,
	)

	return m
}

// Gatherer returns the registry backing these metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, for pickup by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
