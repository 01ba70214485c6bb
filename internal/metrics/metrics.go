// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransportAttempts counts outbound model requests by outcome.
	// Labels: outcome (success, client_error, server_error, network_error)
	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reuse",
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Outbound model request attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TransportRetries counts retries scheduled after a failed attempt.
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reuse",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Retries scheduled after a server or network failure",
		},
	)

	// PipelineCalls counts extraction and search calls by result.
	// Labels: flow (extract, search), result (ok or an error reason)
	PipelineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reuse",
			Subsystem: "pipeline",
			Name:      "calls_total",
			Help:      "Extraction and search calls by flow and result",
		},
		[]string{"flow", "result"},
	)

	// InventoryWrites counts record store writes.
	// Labels: op (add, update, delete, reset, seed), result (ok, error)
	InventoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reuse",
			Subsystem: "inventory",
			Name:      "writes_total",
			Help:      "Record store writes by operation and result",
		},
		[]string{"op", "result"},
	)
)
