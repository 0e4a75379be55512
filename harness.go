package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/pome-lang/pome-harness/bench"
	"github.com/pome-lang/pome-harness/compare"
	"github.com/pome-lang/pome-harness/invoker"
	"github.com/pome-lang/pome-harness/metrics"
	"github.com/pome-lang/pome-harness/registry"
	"github.com/pome-lang/pome-harness/reporting"
	"github.com/pome-lang/pome-harness/runner"
	"github.com/pome-lang/pome-harness/service"
)

// Harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Harness)(nil)

// Harness drives one of the test, bench or compare modes against the interpreter.
type Harness struct {
	config  *Config
	version string

	console    *reporting.Console
	metrics    metrics.Metricer
	status     *service.StatusServer
	runner     runner.TestRunner
	bench      *bench.Harness
	comparator *compare.Comparator

	resultMu sync.RWMutex
	result   *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New wires the components of the configured mode.
func New(config *Config, version string, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating harness with config",
		"mode", config.Mode,
		"binary", config.Binary,
		"ext", config.Extension,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	promRegistry := prometheus.NewRegistry()
	h := &Harness{
		config:           config,
		version:          version,
		console:          reporting.NewConsole(config.Out),
		metrics:          metrics.NewMetrics(config.Log, promRegistry),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	if config.MetricsConfig.Enabled {
		h.status = service.NewStatusServer(config.Log, promRegistry)
	}

	inv := invoker.New(invoker.Config{Log: config.Log})

	var err error
	switch config.Mode {
	case ModeTest:
		err = h.initTestRunner(inv)
	case ModeBench:
		err = h.initBench(inv)
	case ModeCompare:
		h.comparator, err = compare.NewComparator(compare.Config{
			Target: compare.Runtime{
				Binary: config.Binary,
				Script: config.TargetScript,
			},
			Reference: compare.Runtime{
				Binary: config.ReferenceBinary,
				Script: config.ReferenceScript,
			},
			Invoker:  inv,
			Log:      config.Log,
			Reporter: h.console,
			Metrics:  h.metrics,
		})
	default:
		err = fmt.Errorf("unknown mode %q", config.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s harness: %w", config.Mode, err)
	}
	return h, nil
}

func (h *Harness) initTestRunner(inv invoker.Runner) error {
	reg, err := registry.NewRegistry(registry.Config{
		Log:       h.config.Log,
		Dir:       h.config.TestDir,
		Extension: h.config.Extension,
	})
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	h.runner, err = runner.NewTestRunner(runner.Config{
		Registry: reg,
		Invoker:  inv,
		Binary:   h.config.Binary,
		Timeout:  h.config.Timeout,
		Log:      h.config.Log,
		Reporter: h.console,
		Metrics:  h.metrics,
	})
	return err
}

func (h *Harness) initBench(inv invoker.Runner) error {
	reg, err := registry.NewRegistry(registry.Config{
		Log:       h.config.Log,
		Dir:       h.config.BenchDir,
		Extension: h.config.Extension,
	})
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	h.bench, err = bench.NewHarness(bench.Config{
		Registry: reg,
		Invoker:  inv,
		Binary:   h.config.Binary,
		Log:      h.config.Log,
		Reporter: h.console,
		Metrics:  h.metrics,
	})
	return err
}

// Start runs the configured mode. Test mode with a run interval keeps running
// in the background until Stop; every other run completes inside Start and
// signals shutdown on success.
// Start implements the cliapp.Lifecycle interface.
func (h *Harness) Start(ctx context.Context) (err error) {
	h.done = make(chan struct{})
	h.running.Store(true)
	h.config.Log.Info("Starting pome-harness", "version", h.version, "mode", h.config.Mode)

	// Stop is not called after a failed Start.
	defer func() {
		if err != nil {
			h.running.Store(false)
			h.stopStatusServer()
		}
	}()

	if err := h.startStatusServer(); err != nil {
		return NewRuntimeError(err)
	}

	switch h.config.Mode {
	case ModeTest:
		return h.startTests(ctx)
	case ModeBench:
		err = h.runBench(ctx)
	case ModeCompare:
		err = h.runCompare(ctx)
	}
	if err != nil {
		h.metrics.RecordErrorDetails(string(h.config.Mode), err)
		return classifyError(err)
	}

	h.config.Log.Info("Run completed, exiting", "mode", h.config.Mode)
	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

func (h *Harness) startTests(ctx context.Context) error {
	if h.config.RunOnce {
		h.config.Log.Info("Starting pome-harness in run-once mode")
	} else {
		h.config.Log.Info("Starting pome-harness in continuous mode", "interval", h.config.RunInterval)
	}

	// Run tests immediately on startup
	if err := h.runTests(ctx); err != nil {
		h.config.Log.Error("Error running tests", "error", err)
		return classifyError(err)
	}

	if h.config.RunOnce {
		if summary := h.Result().Summary; !summary.OK() {
			h.config.Log.Warn("Test run completed with failures", "result", summary)
			return NewTestFailureError(summary.String())
		}
		h.config.Log.Info("Tests completed, exiting (run-once mode)")
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.config.Log.Debug("Starting periodic test runner goroutine", "interval", h.config.RunInterval)

		ticker := time.NewTicker(h.config.RunInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !h.running.Load() {
					return
				}
				h.config.Log.Info("Running periodic tests")
				if err := h.runTests(ctx); err != nil {
					h.config.Log.Error("Error running periodic tests", "error", err)
					h.metrics.RecordErrorDetails("periodic", err)
				}

			case <-h.done:
				h.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				h.config.Log.Debug("Context canceled, stopping periodic test runner")
				h.running.Store(false)
				return
			}
		}
	}()
	return nil
}

// runTests runs the whole test corpus once and reports the result.
func (h *Harness) runTests(ctx context.Context) error {
	result, err := h.runner.RunAllTests(ctx)
	if err != nil {
		return err
	}
	h.resultMu.Lock()
	h.result = result
	h.resultMu.Unlock()

	if h.config.ResultsTable {
		reporting.PrintTestTable(h.config.Out, result.RunID, result.Verdicts, result.Summary, result.Duration)
	}
	h.setStatus(result.RunID, result.Summary.Passed, result.Summary.Total)
	h.config.Log.Info("Test run completed", "run_id", result.RunID, "result", result.Summary)
	return nil
}

func (h *Harness) runBench(ctx context.Context) error {
	result, err := h.bench.Run(ctx)
	if err != nil {
		return err
	}
	reporting.PrintBenchTable(h.config.Out, result.Records, result.Failures)
	h.setStatus("", len(result.Records), len(result.Records)+len(result.Failures))

	if result.LaunchErr != nil {
		return NewRuntimeError(fmt.Errorf("some benchmarks could not be started: %w", result.LaunchErr))
	}
	return nil
}

func (h *Harness) runCompare(ctx context.Context) error {
	report, err := h.comparator.Run(ctx)
	if err != nil {
		return err
	}
	passed := 0
	if !report.Target.Failed() {
		passed++
	}
	if !report.Reference.Failed() {
		passed++
	}
	h.setStatus("", passed, 2)

	if err := compare.LaunchErr(report); err != nil {
		return NewRuntimeError(fmt.Errorf("comparison could not be completed: %w", err))
	}
	return nil
}

func (h *Harness) setStatus(runID string, passed, total int) {
	if h.status == nil {
		return
	}
	h.status.SetStatus(service.Status{
		Mode:     string(h.config.Mode),
		RunID:    runID,
		Passed:   passed,
		Total:    total,
		OK:       passed == total,
		Finished: time.Now(),
	})
}

func (h *Harness) startStatusServer() error {
	if h.status == nil {
		return nil
	}
	addr := net.JoinHostPort(h.config.MetricsConfig.ListenAddr, strconv.Itoa(h.config.MetricsConfig.ListenPort))
	if err := h.status.Start(addr); err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

func (h *Harness) stopStatusServer() {
	if h.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.status.Stop(ctx); err != nil {
		h.config.Log.Warn("Failed to stop status server", "err", err)
	}
}

// Result returns the most recent test run, nil before the first one completes.
func (h *Harness) Result() *runner.RunnerResult {
	h.resultMu.RLock()
	defer h.resultMu.RUnlock()
	return h.result
}

// Stop stops the harness.
// Stop implements the cliapp.Lifecycle interface.
func (h *Harness) Stop(ctx context.Context) error {
	if !h.running.Load() {
		h.config.Log.Debug("Harness already stopped, nothing to do")
		return nil
	}
	h.config.Log.Info("Stopping pome-harness")
	h.running.Store(false)
	close(h.done)
	h.wg.Wait()

	if h.status != nil {
		if err := h.status.Stop(ctx); err != nil {
			return err
		}
	}
	h.config.Log.Info("pome-harness stopped")
	return nil
}

// Stopped returns true if the harness is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}
