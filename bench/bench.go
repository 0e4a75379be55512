// Package bench times every script of a benchmark corpus under the interpreter.
package bench

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pome-lang/pome-harness/invoker"
	"github.com/pome-lang/pome-harness/metrics"
	"github.com/pome-lang/pome-harness/registry"
	"github.com/pome-lang/pome-harness/types"
)

// TimingMarker identifies stdout lines where a script reports its own timing.
const TimingMarker = "Time:"

// Reporter receives benchmark progress as it happens.
type Reporter interface {
	BenchRunStarted(binary string)
	ScriptStarted(script string)
	ScriptFailed(script string, result *types.Result)
	ScriptLaunchFailed(script string, err error)
	RecordProduced(record types.BenchmarkRecord)
}

// Result is the outcome of one pass over the benchmark corpus.
type Result struct {
	Records   []types.BenchmarkRecord // Successful scripts, in discovery order
	Failures  map[string]string       // Script to failure reason for scripts without a record
	LaunchErr error                   // Joined launch failures, nil if every script started
	Duration  time.Duration
}

// Config holds configuration for creating a new Harness
type Config struct {
	Registry *registry.Registry
	Invoker  invoker.Runner // Defaults to an invoker.Invoker using Log
	Binary   string
	Log      log.Logger
	Reporter Reporter         // Optional
	Metrics  metrics.Metricer // Optional
}

// Harness runs a benchmark corpus one script at a time. Scripts are never
// subject to a timeout.
type Harness struct {
	registry *registry.Registry
	invoker  invoker.Runner
	binary   string
	log      log.Logger
	reporter Reporter
	metrics  metrics.Metricer
	tracer   trace.Tracer
}

// NewHarness creates a new benchmark harness
func NewHarness(cfg Config) (*Harness, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Binary == "" {
		return nil, errors.New("binary is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Invoker == nil {
		cfg.Invoker = invoker.New(invoker.Config{Log: cfg.Log})
	}
	if cfg.Reporter == nil {
		cfg.Reporter = noopReporter{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopMetrics
	}
	return &Harness{
		registry: cfg.Registry,
		invoker:  cfg.Invoker,
		binary:   cfg.Binary,
		log:      cfg.Log,
		reporter: cfg.Reporter,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("bench"),
	}, nil
}

// Run benchmarks every script in the corpus.
//
// The returned error covers conditions that stop the run: a missing binary
// (wrapping invoker.ErrBinaryMissing), an unreadable corpus or an interrupted
// context. Scripts that exit non-zero or cannot be launched are recorded in the
// Result and the run continues.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	if err := invoker.CheckBinary(h.binary); err != nil {
		return nil, err
	}
	scripts, err := h.registry.Scripts()
	if err != nil {
		return nil, fmt.Errorf("failed to discover benchmarks: %w", err)
	}

	ctx, span := h.tracer.Start(ctx, "benchmark", trace.WithAttributes(
		attribute.String("binary", h.binary),
		attribute.Int("scripts", len(scripts)),
	))
	defer span.End()

	h.log.Info("Running benchmarks", "dir", h.registry.Dir(), "count", len(scripts))
	start := time.Now()

	result := &Result{Failures: make(map[string]string)}
	var launchErrs []error

	h.reporter.BenchRunStarted(h.binary)
	for _, script := range scripts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("benchmark run interrupted: %w", err)
		}

		h.reporter.ScriptStarted(script)
		record, err := h.runScript(ctx, script, result)
		switch {
		case invoker.IsLaunchError(err):
			launchErrs = append(launchErrs, err)
		case err != nil:
			return nil, err
		case record != nil:
			result.Records = append(result.Records, *record)
		}
	}
	result.LaunchErr = errors.Join(launchErrs...)
	result.Duration = time.Since(start)

	h.log.Info("Benchmarks finished", "ok", len(result.Records), "failed", len(result.Failures),
		"duration", result.Duration)
	return result, nil
}

// runScript returns a record only for a successful run. Non-zero exits are noted
// in result.Failures and reported; launch failures are returned as errors.
func (h *Harness) runScript(ctx context.Context, script string, result *Result) (*types.BenchmarkRecord, error) {
	res, err := h.invoker.Invoke(ctx, types.NewInvocation(h.binary, script, 0))
	if invoker.IsLaunchError(err) {
		h.reporter.ScriptLaunchFailed(script, err)
		h.metrics.RecordBenchmarkFailure(script, "launch")
		result.Failures[script] = "not started"
		h.log.Error("Benchmark could not be started", "script", script, "err", err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		h.reporter.ScriptFailed(script, res)
		h.metrics.RecordBenchmarkFailure(script, "exit")
		result.Failures[script] = fmt.Sprintf("Exit %d", res.ExitCode)
		h.log.Warn("Benchmark exited with an error", "script", script, "exitCode", res.ExitCode)
		return nil, nil
	}

	record := &types.BenchmarkRecord{
		Script:   script,
		WallTime: res.Duration,
		Usage:    res.Usage,
		Internal: InternalTimings(res.Stdout),
	}
	h.reporter.RecordProduced(*record)
	h.metrics.RecordBenchmark(*record)
	h.log.Debug("Benchmark recorded", "script", script, "wall", record.WallTime)
	return record, nil
}

// InternalTimings returns the trimmed stdout lines that carry TimingMarker.
// The values are relayed verbatim and never parsed.
func InternalTimings(stdout string) []string {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.Contains(line, TimingMarker) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}

type noopReporter struct{}

func (noopReporter) BenchRunStarted(string)               {}
func (noopReporter) ScriptStarted(string)                 {}
func (noopReporter) ScriptFailed(string, *types.Result)   {}
func (noopReporter) ScriptLaunchFailed(string, error)     {}
func (noopReporter) RecordProduced(types.BenchmarkRecord) {}
