// Package metrics exposes cycle outcomes as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsheet/internal/scheduler"
)

const namespace = "marketsheet"

// Registry holds all Prometheus metrics for marketsheet
type Registry struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleErrors   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	SnapshotAssets prometheus.Gauge
	LastSuccess    prometheus.Gauge
}

// NewRegistry creates the metrics on a private prometheus registry
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of cycles by result",
			},
			[]string{"result"},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_errors_total",
				Help:      "Total number of failed cycles by failing stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each cycle stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "result"},
		),

		SnapshotAssets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_assets",
				Help:      "Number of assets in the last fetched snapshot",
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last cycle that wrote the workbook",
			},
		),
	}

	r.registry.MustRegister(
		r.Cycles,
		r.CycleErrors,
		r.StageDuration,
		r.SnapshotAssets,
		r.LastSuccess,
	)

	return r
}

// Gatherer returns the registry backing the /metrics endpoint
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveCycle records one finished cycle
func (r *Registry) ObserveCycle(result scheduler.CycleResult) {
	for _, stage := range result.Stages {
		outcome := "success"
		if stage.Err != nil {
			outcome = "error"
		}
		r.StageDuration.WithLabelValues(string(stage.Stage), outcome).Observe(stage.Duration.Seconds())
	}

	// a failed fetch carries no snapshot
	if result.Success || result.Stage != scheduler.StageFetch {
		r.SnapshotAssets.Set(float64(result.Assets))
	}

	if result.Success {
		r.Cycles.WithLabelValues("success").Inc()
		r.LastSuccess.Set(float64(result.EndTime.UnixNano()) / 1e9)
		return
	}

	r.Cycles.WithLabelValues("error").Inc()
	r.CycleErrors.WithLabelValues(string(result.Stage), result.Kind).Inc()

	log.Debug().
		Str("stage", string(result.Stage)).
		Str("kind", result.Kind).
		Msg("Cycle error recorded")
}
