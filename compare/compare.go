// Package compare times the same workload under the interpreter and under a
// reference runtime and reports the relative speed.
package compare

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pome-lang/pome-harness/invoker"
	"github.com/pome-lang/pome-harness/metrics"
	"github.com/pome-lang/pome-harness/types"
)

// Workload used when no scripts are configured.
const (
	DefaultTargetScript    = "benchmarks/loop_test.pome"
	DefaultReferenceBinary = "python3"
	DefaultReferenceScript = "benchmarks/loop_test.py"
)

// Runtime is one side of a comparison.
type Runtime struct {
	Label  string // Display name, derived from Binary when empty
	Binary string
	Script string
}

// Reporter receives comparison progress.
type Reporter interface {
	RuntimeStarted(label, binary, script string)
	ComparisonFinished(report types.ComparisonReport)
}

// Config holds configuration for creating a new Comparator
type Config struct {
	Target    Runtime
	Reference Runtime
	Invoker   invoker.Runner // Defaults to an invoker.Invoker using Log
	Log       log.Logger
	Reporter  Reporter         // Optional
	Metrics   metrics.Metricer // Optional
}

// Comparator runs the target and the reference once each, without a timeout.
type Comparator struct {
	target    Runtime
	reference Runtime
	invoker   invoker.Runner
	log       log.Logger
	reporter  Reporter
	metrics   metrics.Metricer
	tracer    trace.Tracer
}

// NewComparator creates a new Comparator
func NewComparator(cfg Config) (*Comparator, error) {
	if cfg.Target.Binary == "" || cfg.Target.Script == "" {
		return nil, errors.New("target binary and script are required")
	}
	if cfg.Reference.Binary == "" || cfg.Reference.Script == "" {
		return nil, errors.New("reference binary and script are required")
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
	cfg.Target.Label = labelOf(cfg.Target)
	cfg.Reference.Label = labelOf(cfg.Reference)

	return &Comparator{
		target:    cfg.Target,
		reference: cfg.Reference,
		invoker:   cfg.Invoker,
		log:       cfg.Log,
		reporter:  cfg.Reporter,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("compare"),
	}, nil
}

// Run measures both runtimes, target first. A failing target does not stop
// the reference from being measured. The Comparison is only computed when both
// sides exited 0.
//
// Launch failures are recorded in the report, not returned. The error is only
// non-nil if ctx was cancelled.
func (c *Comparator) Run(ctx context.Context) (*types.ComparisonReport, error) {
	ctx, span := c.tracer.Start(ctx, "compare", trace.WithAttributes(
		attribute.String("target", c.target.Binary),
		attribute.String("reference", c.reference.Binary),
	))
	defer span.End()

	target, err := c.measure(ctx, c.target)
	if err != nil {
		return nil, err
	}
	reference, err := c.measure(ctx, c.reference)
	if err != nil {
		return nil, err
	}

	report := &types.ComparisonReport{Target: target, Reference: reference}
	if !target.Failed() && !reference.Failed() {
		cmp := Compute(target.Duration(), reference.Duration())
		report.Comparison = &cmp
		c.metrics.RecordComparison(cmp)
		span.SetAttributes(attribute.Float64("ratio", cmp.Ratio))
		c.log.Info("Comparison finished", "target", target.Duration(), "reference", reference.Duration(),
			"ratio", cmp.Ratio, "faster", cmp.Faster)
	} else {
		c.log.Warn("Comparison incomplete", "targetFailed", target.Failed(), "referenceFailed", reference.Failed())
	}
	c.reporter.ComparisonFinished(*report)
	return report, nil
}

// LaunchErr joins the launch failures of both sides, nil if both started.
func LaunchErr(report *types.ComparisonReport) error {
	return errors.Join(report.Target.Err, report.Reference.Err)
}

func (c *Comparator) measure(ctx context.Context, rt Runtime) (types.RuntimeRun, error) {
	run := types.RuntimeRun{Label: rt.Label, Binary: rt.Binary, Script: rt.Script}
	c.reporter.RuntimeStarted(rt.Label, rt.Binary, rt.Script)

	res, err := c.invoker.Invoke(ctx, types.NewInvocation(rt.Binary, rt.Script, 0))
	switch {
	case invoker.IsLaunchError(err):
		run.Err = err
		c.metrics.RecordErrorDetails("launch", err)
		c.log.Error("Runtime could not be started", "runtime", rt.Label, "err", err)
	case err != nil:
		return run, fmt.Errorf("comparison interrupted while running %s: %w", rt.Label, err)
	default:
		run.Result = res
		c.log.Debug("Runtime measured", "runtime", rt.Label, "exitCode", res.ExitCode, "duration", res.Duration)
	}
	return run, nil
}

// Compute derives the speedup of target over reference. The ratio is
// reference/target, so values above 1 mean the target is faster. A zero target
// duration yields no ratio.
func Compute(target, reference time.Duration) types.Comparison {
	cmp := types.Comparison{
		Target:    target,
		Reference: reference,
		Faster:    target < reference,
	}
	if target > 0 {
		cmp.Ratio = reference.Seconds() / target.Seconds()
	}
	return cmp
}

func labelOf(rt Runtime) string {
	if rt.Label != "" {
		return rt.Label
	}
	label := filepath.Base(rt.Binary)
	if label == "." || label == string(filepath.Separator) {
		return rt.Binary
	}
	return label
}

type noopReporter struct{}

func (noopReporter) RuntimeStarted(string, string, string)     {}
func (noopReporter) ComparisonFinished(types.ComparisonReport) {}
