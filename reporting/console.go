// Package reporting renders harness progress and results for operators.
//
// Console writes the line-oriented report as each script finishes, in discovery
// order, so that two runs against an unchanged corpus print the same lines.
// The go-pretty tables are summaries printed once a run is complete.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/pome-lang/pome-harness/types"
)

const separatorWidth = 40

var (
	heavySeparator = strings.Repeat("=", separatorWidth)
	lightSeparator = strings.Repeat("-", separatorWidth)
)

// Console writes the streaming report to out, normally stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a new Console
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// TestRunStarted prints the test report header.
func (c *Console) TestRunStarted() {
	c.printf("Pome Test Runner\n")
	c.printf("%s\n", heavySeparator)
}

// TestStarted prints the start of a test line before the interpreter runs,
// so a hanging script is visible while it hangs.
func (c *Console) TestStarted(tc types.TestCase) {
	c.printf("Testing %s... ", tc.Path)
}

// TestFinished completes the test line and surfaces stderr for failures.
func (c *Console) TestFinished(v types.Verdict) {
	c.printf("%s\n", Outcome(v))
	if v.Passed {
		return
	}
	if stderr := v.Stderr(); stderr != "" {
		c.printf("%s", stderr)
		if !strings.HasSuffix(stderr, "\n") {
			c.printf("\n")
		}
	}
}

// TestRunFinished prints the passed/total tally.
func (c *Console) TestRunFinished(summary types.Summary) {
	c.printf("%s\n", lightSeparator)
	c.printf("Result: %s\n", summary)
}

// Outcome renders a verdict as PASS or FAIL with its reason.
func Outcome(v types.Verdict) string {
	word := "FAIL"
	if v.Passed {
		word = "PASS"
	}
	if v.Reason == "" {
		return word
	}
	return fmt.Sprintf("%s (%s)", word, v.Reason)
}

// BenchRunStarted prints the benchmark report header.
func (c *Console) BenchRunStarted(binary string) {
	c.printf("Benchmarking Pome (Bin: %s)\n", binary)
	c.printf("%s\n", heavySeparator)
}

// ScriptStarted announces a benchmark script.
func (c *Console) ScriptStarted(script string) {
	c.printf("Running %s...\n", script)
}

// ScriptFailed prints the stderr of a benchmark that exited non-zero.
func (c *Console) ScriptFailed(script string, result *types.Result) {
	c.printf("Error (Exit %d):\n", result.ExitCode)
	c.printf("%s\n", result.Stderr)
}

// ScriptLaunchFailed reports a benchmark the interpreter could not be started for.
func (c *Console) ScriptLaunchFailed(script string, err error) {
	c.printf("Failed to run: %v\n", err)
}

// RecordProduced prints the timing of a successful benchmark.
func (c *Console) RecordProduced(record types.BenchmarkRecord) {
	c.printf("  Wall Time: %s\n", FormatSeconds(record.WallTime))
	if record.Usage != nil {
		c.printf("  User Time: %s\n", FormatSeconds(record.Usage.UserTime))
		c.printf("  Sys Time:  %s\n", FormatSeconds(record.Usage.SystemTime))
		if record.Usage.MaxRSSBytes > 0 {
			c.printf("  Peak RSS:  %s\n", FormatBytes(record.Usage.MaxRSSBytes))
		}
	}
	for _, line := range record.Internal {
		c.printf("  Internal:  %s\n", line)
	}
	c.printf("%s\n", lightSeparator)
}

// RuntimeStarted announces one side of a comparison.
func (c *Console) RuntimeStarted(label, binary, script string) {
	c.printf("Running %s (%s %s)...\n", label, binary, script)
}

// ComparisonFinished prints both timings and, when available, the speedup.
func (c *Console) ComparisonFinished(report types.ComparisonReport) {
	target, reference := report.Target, report.Reference
	width := max(len(target.Label), len(reference.Label)) + 1

	c.printf("\n--- Results ---\n")
	for _, run := range []types.RuntimeRun{target, reference} {
		c.printf("%-*s %s\n", width, run.Label+":", runtimeSummary(run))
	}
	for _, run := range []types.RuntimeRun{target, reference} {
		if !run.Failed() {
			continue
		}
		if run.Err != nil {
			c.printf("%s error: %v\n", run.Label, run.Err)
		} else if run.Result.Stderr != "" {
			c.printf("%s stderr:\n%s\n", run.Label, strings.TrimRight(run.Result.Stderr, "\n"))
		}
	}

	if report.Comparison == nil {
		return
	}
	cmp := report.Comparison
	if !cmp.HasRatio() {
		c.printf("Speedup vs %s: n/a (%s reported no measurable duration)\n", reference.Label, target.Label)
		return
	}
	c.printf("Speedup vs %s: %s (Higher is better for %s)\n", reference.Label, FormatRatio(cmp.Ratio), target.Label)
	c.printf("%s is %s.\n", target.Label, cmp.Verdict())
}

func runtimeSummary(run types.RuntimeRun) string {
	switch {
	case run.Err != nil:
		return "Failed (not started)"
	case run.Result.TimedOut:
		return "Failed (timed out)"
	case run.Result.ExitCode != 0:
		return fmt.Sprintf("Failed (Exit %d)", run.Result.ExitCode)
	default:
		return FormatSeconds(run.Result.Duration)
	}
}

// FormatSeconds renders a duration as seconds with four decimals.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.4fs", d.Seconds())
}

// FormatRatio renders a speedup ratio with two decimals.
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.2fx", ratio)
}

// FormatBytes renders a byte count in binary units.
func FormatBytes(n int64) string {
	return units.BytesSize(float64(n))
}
