package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxcheckout_processor_requests_total",
		Help: "Outbound processor calls, labeled by outcome",
	}, []string{"processor", "operation", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mxcheckout_processor_request_duration_seconds",
		Help:    "Latency of outbound processor calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"processor", "operation"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxcheckout_processor_fallbacks_total",
		Help: "Charges resubmitted without the rejected customer reference",
	}, []string{"processor", "method"})

	initializationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxcheckout_processor_initializations_total",
		Help: "Adapter initializations, labeled by outcome",
	}, []string{"processor", "outcome"})

	stagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxcheckout_sequencer_stages_total",
		Help: "Confirmation sequencer stages reached",
	}, []string{"processor", "method", "stage"})
)

// ObserveStage counts a multi-step confirmation stage.
func ObserveStage(processor, method, stage string) {
	stagesTotal.WithLabelValues(processor, method, stage).Inc()
}
