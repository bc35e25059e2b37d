// Package metrics exposes the engine's Prometheus instrumentation: detector
// throughput and latency, alert emission by type and severity, and the live
// size of the follow graph.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Registry holds all integrity-engine metrics.
type Registry struct {
	BetsProcessed    prometheus.Counter
	BatchesProcessed prometheus.Counter
	DetectorDuration *prometheus.HistogramVec
	AlertsEmitted    *prometheus.CounterVec
	ScoreCacheHits   prometheus.Counter
	ScoreCacheMisses prometheus.Counter
	FollowEdges      prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates and registers all metrics on a private registry.
func NewRegistry() *Registry {
	r := &Registry{
		BetsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_bets_processed_total",
			Help: "Normalized bets consumed by the stream processor",
		}),
		BatchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_batches_processed_total",
			Help: "Bet batches processed end to end",
		}),
		DetectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "integrity_detector_duration_seconds",
			Help:    "Wall time of one detector invocation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"detector"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_alerts_emitted_total",
			Help: "Alerts emitted by the detectors",
		}, []string{"type", "severity"}),
		ScoreCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_score_cache_hits_total",
			Help: "TruthScore cache hits",
		}),
		ScoreCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_score_cache_misses_total",
			Help: "TruthScore cache misses",
		}),
		FollowEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "integrity_follow_edges_active",
			Help: "Active edges in the follow graph",
		}),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.BetsProcessed,
		r.BatchesProcessed,
		r.DetectorDuration,
		r.AlertsEmitted,
		r.ScoreCacheHits,
		r.ScoreCacheMisses,
		r.FollowEdges,
	)
	return r
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveAlert bumps the emission counter for one alert.
func (r *Registry) ObserveAlert(alert *models.Alert) {
	if alert == nil {
		return
	}
	r.AlertsEmitted.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
}
