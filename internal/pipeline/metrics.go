package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operatorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forecast_operator_duration_seconds",
		Help:    "Duration of pipeline operator calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"operator", "status"})

	operatorsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_operators_skipped_total",
		Help: "Operators skipped because the scenario already reached their stage",
	}, []string{"operator"})

	stagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_stages_persisted_total",
		Help: "Stages persisted by pipeline runs",
	}, []string{"stage"})
)
