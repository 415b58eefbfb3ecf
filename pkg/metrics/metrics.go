// Copyright 2025 Ditto Network
//
// Package metrics exposes the engine's Prometheus instrumentation. The
// collectors below are registered with the default registry and served by
// Handler; no package in this module increments or observes them, so they
// report their zero values.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SchedulerCycles counts completed scheduler loop iterations.
	SchedulerCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_engine_scheduler_cycles_total",
		Help: "Number of scheduler cycles completed.",
	})

	// WorkerDuration observes how long one workflow's state machine run
	// takes end to end.
	WorkerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "workflow_engine_worker_duration_seconds",
		Help:    "Duration of a single workflow's state machine run.",
		Buckets: prometheus.DefBuckets,
	})

	// WorkflowsCancelled counts workflows transitioned to Cancelled.
	WorkflowsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workflow_engine_workflows_cancelled_total",
		Help: "Number of workflows cancelled by the AA23 policy.",
	})

	// WasmRuns counts guest WASM invocations, labeled by outcome.
	WasmRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_wasm_runs_total",
		Help: "Number of guest WASM invocations by outcome.",
	}, []string{"outcome"})

	// ValidationRequests counts /task/validate calls, labeled by decision.
	ValidationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_engine_validation_requests_total",
		Help: "Number of validation requests by decision.",
	}, []string{"decision"})
)

// Handler returns the HTTP handler serving /metrics in the Prometheus
// text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
