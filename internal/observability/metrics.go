package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	batchTotal    *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram

	callTotal    *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	executingCalls   prometheus.Gauge
	pendingApprovals prometheus.Gauge

	approvalTotal    *prometheus.CounterVec
	approvalDuration prometheus.Histogram

	outputChunksTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			batchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "batch_total",
					Help: "Total batches driven to completion by status.",
				},
				[]string{"status"},
			),
			batchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "batch_duration_seconds",
					Help:    "Batch wall time from first validation to completion.",
					Buckets: prometheus.DefBuckets,
				},
			),
			batchSize: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "batch_size_calls",
					Help:    "Number of call records per batch.",
					Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
				},
			),
			callTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "call_total",
					Help: "Total call records by tool and terminal state.",
				},
				[]string{"tool", "state"},
			),
			callDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "call_execution_duration_seconds",
					Help:    "Executing-phase duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			executingCalls: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "executing_calls",
					Help: "Call records currently in the executing state.",
				},
			),
			pendingApprovals: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "pending_approvals",
					Help: "Approval prompts currently awaiting a decision.",
				},
			),
			approvalTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "approval_decision_total",
					Help: "Total approval decisions by decision.",
				},
				[]string{"decision"},
			),
			approvalDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "approval_wait_duration_seconds",
					Help:    "Time a call spent awaiting approval in seconds.",
					Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
				},
			),
			outputChunksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "output_chunks_total",
					Help: "Total live-output chunks forwarded to observers.",
				},
			),
		}

		prometheus.MustRegister(
			m.batchTotal,
			m.batchDuration,
			m.batchSize,
			m.callTotal,
			m.callDuration,
			m.executingCalls,
			m.pendingApprovals,
			m.approvalTotal,
			m.approvalDuration,
			m.outputChunksTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordBatchStart(size int) {
	m := getMetrics()
	m.batchSize.Observe(float64(size))
}

func RecordBatchCompletion(duration time.Duration, cancelled bool) {
	m := getMetrics()
	status := "completed"
	if cancelled {
		status = "cancelled"
	}
	m.batchTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(duration.Seconds())
}

func RecordCallCompletion(tool, state string, executing time.Duration) {
	m := getMetrics()
	m.callTotal.WithLabelValues(tool, state).Inc()
	if executing > 0 {
		m.callDuration.WithLabelValues(tool).Observe(executing.Seconds())
	}
}

func CallExecutionStarted() {
	getMetrics().executingCalls.Inc()
}

func CallExecutionEnded() {
	getMetrics().executingCalls.Dec()
}

func ApprovalRequested() {
	getMetrics().pendingApprovals.Inc()
}

func RecordApprovalDecision(decision string, wait time.Duration) {
	m := getMetrics()
	m.pendingApprovals.Dec()
	m.approvalTotal.WithLabelValues(decision).Inc()
	m.approvalDuration.Observe(wait.Seconds())
}

func RecordOutputChunk() {
	getMetrics().outputChunksTotal.Inc()
}
