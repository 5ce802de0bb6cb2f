package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfsuite_endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	// Timed region of one (kernel, variant, tuning) pass.
	KernelRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perfsuite_kernel_run_duration_ms",
		Help:    "Duration of a kernel's timed region in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"kernel", "variant", "tuning"})

	KernelRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfsuite_kernel_runs_total",
		Help: "Total number of (kernel, variant, tuning) executions by status",
	}, []string{"kernel", "variant", "status"})

	ChecksumRelativeDiff = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfsuite_checksum_relative_diff",
		Help: "Relative checksum difference against the reference variant",
	}, []string{"kernel", "variant", "tuning"})

	ValidationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfsuite_validation_results_total",
		Help: "Post-run checksum validation results per kernel",
	}, []string{"kernel", "result"})

	// Memory currently held per data space.
	DataSpaceBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfsuite_dataspace_bytes",
		Help: "Bytes currently allocated per data space",
	}, []string{"space"})

	PairsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perfsuite_pairs_registered",
		Help: "Number of (kernel, variant, tuning) pairs selected for the run",
	})
)

const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"

	ResultPassed = "passed"
	ResultFailed = "failed"
)
