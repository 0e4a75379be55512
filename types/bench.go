package types

import "time"

// BenchmarkRecord is the timing captured for one successfully-run benchmark script.
type BenchmarkRecord struct {
	Script   string
	WallTime time.Duration
	Usage    *ResourceUsage
	Internal []string // Lines the script printed containing the internal timing marker
}

// Comparison is the outcome of timing one script pair under two runtimes.
type Comparison struct {
	Target    time.Duration
	Reference time.Duration
	Ratio     float64 // Reference / Target; zero when no ratio could be computed
	Faster    bool    // The target finished in less time than the reference
}

// HasRatio reports whether a speedup ratio was computed.
func (c Comparison) HasRatio() bool {
	return c.Target > 0
}

// Verdict returns the human readable outcome of the comparison.
func (c Comparison) Verdict() string {
	if c.Faster {
		return "faster"
	}
	return "slower"
}

// RuntimeRun is one side of a cross-runtime comparison.
type RuntimeRun struct {
	Label  string
	Binary string
	Script string
	Result *Result // Nil if the runtime could not be launched
	Err    error   // Launch failure, if any
}

// Failed reports whether the run did not complete successfully.
func (r RuntimeRun) Failed() bool {
	return r.Err != nil || !r.Result.Succeeded()
}

// Duration is the wall-clock duration of the run, zero if it never started.
func (r RuntimeRun) Duration() time.Duration {
	if r.Result == nil {
		return 0
	}
	return r.Result.Duration
}

// ComparisonReport is everything the comparator learned from one execution.
type ComparisonReport struct {
	Target     RuntimeRun
	Reference  RuntimeRun
	Comparison *Comparison // Nil unless both runtimes succeeded
}
