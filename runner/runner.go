package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pome-lang/pome-harness/invoker"
	"github.com/pome-lang/pome-harness/metrics"
	"github.com/pome-lang/pome-harness/registry"
	"github.com/pome-lang/pome-harness/types"
)

// DefaultTimeout is the per-test wall-clock limit.
const DefaultTimeout = 5 * time.Second

// RunnerResult captures the complete test run results
type RunnerResult struct {
	RunID    string
	Verdicts []types.Verdict // In discovery order
	Summary  types.Summary
	Duration time.Duration
}

// Reporter receives test progress as it happens.
type Reporter interface {
	TestRunStarted()
	TestStarted(tc types.TestCase)
	TestFinished(v types.Verdict)
	TestRunFinished(summary types.Summary)
}

// TestRunner defines the interface for running the test corpus
type TestRunner interface {
	RunAllTests(ctx context.Context) (*RunnerResult, error)
	RunTest(ctx context.Context, tc types.TestCase) (types.Verdict, error)
}

// runner struct implements TestRunner interface
type runner struct {
	registry *registry.Registry
	invoker  invoker.Runner
	binary   string
	timeout  time.Duration
	log      log.Logger
	reporter Reporter
	metrics  metrics.Metricer
	tracer   trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry *registry.Registry
	Invoker  invoker.Runner // Defaults to an invoker.Invoker using Log
	Binary   string         // Interpreter under test
	Timeout  time.Duration  // Per-test limit, zero means unbounded
	Log      log.Logger
	Reporter Reporter         // Optional
	Metrics  metrics.Metricer // Optional
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Binary == "" {
		return nil, errors.New("binary is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
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

	cfg.Log.Debug("NewTestRunner()", "dir", cfg.Registry.Dir(), "binary", cfg.Binary, "timeout", cfg.Timeout)

	return &runner{
		registry: cfg.Registry,
		invoker:  cfg.Invoker,
		binary:   cfg.Binary,
		timeout:  cfg.Timeout,
		log:      cfg.Log,
		reporter: cfg.Reporter,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("test runner"),
	}, nil
}

// RunAllTests implements the TestRunner interface.
//
// A missing binary is reported before anything runs, as an error wrapping
// invoker.ErrBinaryMissing. Failing tests are not errors; they are counted in
// the returned Summary.
func (r *runner) RunAllTests(ctx context.Context) (*RunnerResult, error) {
	if err := invoker.CheckBinary(r.binary); err != nil {
		return nil, err
	}
	cases, err := r.registry.TestCases()
	if err != nil {
		return nil, fmt.Errorf("failed to discover tests: %w", err)
	}

	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, "run all tests", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("tests", len(cases)),
	))
	defer span.End()

	start := time.Now()
	r.log.Info("Running tests", "run_id", runID, "dir", r.registry.Dir(), "count", len(cases))

	result := &RunnerResult{
		RunID:    runID,
		Verdicts: make([]types.Verdict, 0, len(cases)),
	}

	r.reporter.TestRunStarted()
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("test run %s interrupted: %w", runID, err)
		}

		r.reporter.TestStarted(tc)
		verdict, err := r.RunTest(ctx, tc)
		if err != nil {
			return nil, err
		}
		r.reporter.TestFinished(verdict)

		result.Verdicts = append(result.Verdicts, verdict)
		result.Summary.Add(verdict)
	}
	result.Duration = time.Since(start)
	r.reporter.TestRunFinished(result.Summary)

	r.metrics.RecordTestRun(runID, result.Summary, result.Duration)
	span.SetAttributes(attribute.Int("passed", result.Summary.Passed))
	r.log.Info("Tests finished", "run_id", runID, "passed", result.Summary.Passed,
		"total", result.Summary.Total, "duration", result.Duration)

	return result, nil
}

// RunTest runs a single test case and judges the outcome. The error is only
// non-nil when the run itself was interrupted; a binary that cannot be launched
// yields a failing verdict.
func (r *runner) RunTest(ctx context.Context, tc types.TestCase) (types.Verdict, error) {
	res, err := r.invoker.Invoke(ctx, types.NewInvocation(r.binary, tc.Path, r.timeout))
	var launchErr error
	if err != nil {
		if !invoker.IsLaunchError(err) {
			return types.Verdict{}, err
		}
		launchErr = err
		r.metrics.RecordErrorDetails("launch", err)
	}

	verdict := Judge(tc, res, launchErr)
	var duration time.Duration
	if res != nil {
		duration = res.Duration
	}
	r.metrics.RecordVerdict(verdict, duration)
	r.log.Debug("Test judged", "script", tc.Path, "expectation", tc.Expectation,
		"status", verdict.Status(), "reason", verdict.Reason)

	return verdict, nil
}

// Judge classifies the outcome of one test case.
//
// An expect-success case passes only on exit code 0. An expect-failure case
// passes only on a non-zero exit that was not caused by the timeout. A timeout
// or a launch failure fails either kind.
func Judge(tc types.TestCase, res *types.Result, launchErr error) types.Verdict {
	v := types.Verdict{Case: tc, Result: res, LaunchErr: launchErr}
	switch {
	case launchErr != nil:
		v.Reason = fmt.Sprintf("Error: %v", launchErr)
	case res == nil:
		v.Reason = "Error: no result"
	case res.TimedOut:
		v.Reason = "Timeout"
	case tc.Expectation == types.ExpectFailure && res.ExitCode != 0:
		v.Passed = true
		v.Reason = "Expected Failure"
	case tc.Expectation == types.ExpectFailure:
		v.Reason = "Expected error but got 0"
	case res.ExitCode == 0:
		v.Passed = true
	default:
		v.Reason = fmt.Sprintf("Exit %d", res.ExitCode)
	}
	return v
}

type noopReporter struct{}

func (noopReporter) TestRunStarted()               {}
func (noopReporter) TestStarted(types.TestCase)    {}
func (noopReporter) TestFinished(types.Verdict)    {}
func (noopReporter) TestRunFinished(types.Summary) {}

var _ TestRunner = (*runner)(nil)
