package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_total",
		Help: "The total number of batched kernel dispatches by operation and outcome",
	}, []string{"op", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_duration_ms",
		Help:    "Duration of a batched kernel dispatch in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10µs to ~320ms
	}, []string{"op"})

	DispatchBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_batch_size",
		Help: "Batch count of the last dispatched operation",
	})

	// Handle pool metrics
	PoolHandlesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_handles_created_total",
		Help: "Total number of cuBLAS handles ever created by the pool",
	})

	PoolBorrows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_borrows_total",
		Help: "Total number of handle borrows by whether an idle handle was reused",
	}, []string{"outcome"})

	PoolIdleHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_idle_handles",
		Help: "Number of idle handles currently held by the pool across all streams",
	})

	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of HTTP responses by endpoint and status code",
	}, []string{"endpoint", "status_code"})

	// Transfer metrics
	StagedPointerBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staged_pointer_bytes_total",
		Help: "Total bytes of batch pointer arrays staged to device memory",
	})
)
