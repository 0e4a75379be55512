package metrics

import (
	"time"

	"github.com/pome-lang/pome-harness/types"
)

type noopMetrics struct{}

// NoopMetrics discards everything; used when metrics are disabled and in tests.
var NoopMetrics Metricer = noopMetrics{}

func (noopMetrics) RecordVerdict(types.Verdict, time.Duration)         {}
func (noopMetrics) RecordTestRun(string, types.Summary, time.Duration) {}
func (noopMetrics) RecordBenchmark(types.BenchmarkRecord)              {}
func (noopMetrics) RecordBenchmarkFailure(string, string)              {}
func (noopMetrics) RecordComparison(types.Comparison)                  {}
func (noopMetrics) RecordError(string)                                 {}
func (noopMetrics) RecordErrorDetails(string, error)                   {}
