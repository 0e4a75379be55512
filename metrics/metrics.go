package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/pome-lang/pome-harness/types"
)

const (
	Namespace = "pome_harness"
)

var nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

// Metricer records the outcome of harness runs.
type Metricer interface {
	RecordVerdict(verdict types.Verdict, duration time.Duration)
	RecordTestRun(runID string, summary types.Summary, duration time.Duration)
	RecordBenchmark(record types.BenchmarkRecord)
	RecordBenchmarkFailure(script string, reason string)
	RecordComparison(comparison types.Comparison)
	RecordError(label string)
	RecordErrorDetails(label string, err error)
}

// Metrics is the Prometheus implementation of Metricer.
type Metrics struct {
	log log.Logger

	verdictsTotal     *prometheus.CounterVec
	scriptDuration    *prometheus.HistogramVec
	testRunsTotal     *prometheus.CounterVec
	lastRunPassed     prometheus.Gauge
	lastRunTotal      prometheus.Gauge
	lastRunDuration   prometheus.Gauge
	benchWallTime     *prometheus.GaugeVec
	benchMaxRSS       *prometheus.GaugeVec
	benchFailures     *prometheus.CounterVec
	comparisonSpeedup prometheus.Gauge
	errorsTotal       *prometheus.CounterVec
}

var _ Metricer = (*Metrics)(nil)

// NewMetrics registers the harness metrics on registry.
func NewMetrics(logger log.Logger, registry *prometheus.Registry) *Metrics {
	if logger == nil {
		logger = log.New()
	}
	factory := opmetrics.With(registry)
	return &Metrics{
		log: logger,

		verdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verdicts_total",
			Help:      "Count of test verdicts",
		}, []string{
			"expectation",
			"result",
		}),
		scriptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "script_duration_seconds",
			Help:      "Wall-clock duration of interpreter invocations",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{
			"mode",
		}),
		testRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "test_runs_total",
			Help:      "Count of complete test runs",
		}, []string{
			"result",
		}),
		lastRunPassed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_passed",
			Help:      "Number of passed tests in the last run",
		}),
		lastRunTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_total",
			Help:      "Number of tests in the last run",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last test run",
		}),
		benchWallTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "benchmark_wall_seconds",
			Help:      "Wall-clock time of the last run of each benchmark script",
		}, []string{
			"script",
		}),
		benchMaxRSS: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "benchmark_max_rss_bytes",
			Help:      "Peak resident memory of the last run of each benchmark script",
		}, []string{
			"script",
		}),
		benchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "benchmark_failures_total",
			Help:      "Count of benchmark scripts that produced no record",
		}, []string{
			"script",
			"reason",
		}),
		comparisonSpeedup: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "comparison_speedup_ratio",
			Help:      "Reference duration divided by target duration of the last comparison",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Count of errors",
		}, []string{
			"error",
		}),
	}
}

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	for strings.Contains(errClean, "__") {
		errClean = strings.ReplaceAll(errClean, "__", "_")
	}
	return errClean
}

func (m *Metrics) RecordVerdict(verdict types.Verdict, duration time.Duration) {
	m.log.Debug("metric inc",
		"m", "verdicts_total",
		"expectation", verdict.Case.Expectation,
		"result", verdict.Status())
	m.verdictsTotal.WithLabelValues(verdict.Case.Expectation.String(), string(verdict.Status())).Inc()
	m.scriptDuration.WithLabelValues("test").Observe(duration.Seconds())
}

func (m *Metrics) RecordTestRun(runID string, summary types.Summary, duration time.Duration) {
	result := types.TestStatusPass
	if !summary.OK() {
		result = types.TestStatusFail
	}
	m.log.Debug("metric inc",
		"m", "test_runs_total",
		"run_id", runID,
		"result", result,
		"passed", summary.Passed,
		"total", summary.Total)
	m.testRunsTotal.WithLabelValues(string(result)).Inc()
	m.lastRunPassed.Set(float64(summary.Passed))
	m.lastRunTotal.Set(float64(summary.Total))
	m.lastRunDuration.Set(duration.Seconds())
}

func (m *Metrics) RecordBenchmark(record types.BenchmarkRecord) {
	m.scriptDuration.WithLabelValues("bench").Observe(record.WallTime.Seconds())
	m.benchWallTime.WithLabelValues(record.Script).Set(record.WallTime.Seconds())
	if record.Usage != nil && record.Usage.MaxRSSBytes > 0 {
		m.benchMaxRSS.WithLabelValues(record.Script).Set(float64(record.Usage.MaxRSSBytes))
	}
}

func (m *Metrics) RecordBenchmarkFailure(script string, reason string) {
	m.benchFailures.WithLabelValues(script, reason).Inc()
}

func (m *Metrics) RecordComparison(comparison types.Comparison) {
	if !comparison.HasRatio() {
		return
	}
	m.comparisonSpeedup.Set(comparison.Ratio)
}

func (m *Metrics) RecordError(label string) {
	m.log.Debug("metric inc",
		"m", "errors_total",
		"error", label)
	m.errorsTotal.WithLabelValues(label).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func (m *Metrics) RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	m.RecordError(fmt.Sprintf("%s.%s", label, errToLabel(err)))
}
