// Package metrics exposes the engine's Prometheus instrumentation: call
// counts and latency for the generator client, and queue depth for the
// dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GeneratorCalls counts generator invocations by use_case and outcome
	// (ok, timeout, generation_invalid, transient, validation).
	GeneratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_generator_calls_total",
		Help: "Total generator client calls, labelled by use case and outcome.",
	}, []string{"use_case", "outcome"})

	// GeneratorLatency observes end-to-end generator call duration in seconds.
	GeneratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_generator_latency_seconds",
		Help:    "Generator client call latency in seconds, labelled by use case.",
		Buckets: prometheus.DefBuckets,
	}, []string{"use_case"})

	// DispatcherQueueDepth tracks the number of pipeline jobs currently
	// queued or in flight.
	DispatcherQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_dispatcher_queue_depth",
		Help: "Number of session pipeline jobs queued or running in the dispatcher.",
	})

	// ReassessmentDecisions counts reassessment outcomes by decision
	// (promote, demote, hold).
	ReassessmentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_reassessment_decisions_total",
		Help: "Total reassessment decisions, labelled by outcome.",
	}, []string{"decision"})
)
