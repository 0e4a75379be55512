package invoker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pome-lang/pome-harness/types"
)

const (
	// TimeoutExitCode is the synthetic exit code reported for a child killed on timeout.
	TimeoutExitCode = 124

	// DefaultCaptureBytes bounds how much of each output stream is kept in memory.
	DefaultCaptureBytes = 16 * 1024 * 1024

	// DefaultWaitDelay is how long to wait for output pipes after the child is gone.
	DefaultWaitDelay = 2 * time.Second
)

// ErrBinaryMissing is returned by CheckBinary when the interpreter does not exist.
var ErrBinaryMissing = errors.New("binary not found")

// LaunchError reports that the child process could not be started at all.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Binary, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError checks if the error is or wraps a LaunchError
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return err != nil && errors.As(err, &launchErr)
}

// Runner is anything able to execute an Invocation.
type Runner interface {
	Invoke(ctx context.Context, inv types.Invocation) (*types.Result, error)
}

var _ Runner = (*Invoker)(nil)

// Config holds configuration for creating a new Invoker
type Config struct {
	Log          log.Logger
	CaptureBytes int           // Per-stream capture limit, DefaultCaptureBytes if zero
	WaitDelay    time.Duration // Pipe drain bound after kill, DefaultWaitDelay if zero
}

// Invoker spawns interpreter processes. It keeps no state between calls.
type Invoker struct {
	log          log.Logger
	captureBytes int
	waitDelay    time.Duration
	tracer       trace.Tracer
}

// New creates a new Invoker
func New(cfg Config) *Invoker {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CaptureBytes <= 0 {
		cfg.CaptureBytes = DefaultCaptureBytes
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Invoker{
		log:          cfg.Log,
		captureBytes: cfg.CaptureBytes,
		waitDelay:    cfg.WaitDelay,
		tracer:       otel.Tracer("invoker"),
	}
}

// Invoke runs inv to completion, or until its timeout expires.
//
// The returned error is a *LaunchError if the binary could not be started, or
// wraps ctx.Err() if the caller's context was cancelled while the child ran.
// Timeouts and non-zero exits are not errors; they are described by the Result.
func (i *Invoker) Invoke(ctx context.Context, inv types.Invocation) (*types.Result, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	if inv.Binary == "" {
		return nil, errors.New("binary cannot be empty")
	}

	ctx, span := i.tracer.Start(ctx, "invoke", trace.WithAttributes(
		attribute.String("binary", inv.Binary),
		attribute.String("script", inv.Script()),
		attribute.String("timeout", inv.Timeout.String()),
	))
	defer span.End()

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Binary, inv.Args...)
	isolateProcessGroup(cmd)
	cmd.WaitDelay = i.waitDelay

	// Set only when the child was still running and got killed.
	var killed atomic.Bool
	kill := cmd.Cancel
	cmd.Cancel = func() error {
		err := kill()
		if err == nil {
			killed.Store(true)
		}
		return err
	}

	stdout := newTailBuffer(i.captureBytes)
	stderr := newTailBuffer(i.captureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	i.log.Debug("Invoking binary", "binary", inv.Binary, "args", inv.Args, "timeout", inv.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch failed")
		return nil, &LaunchError{Binary: inv.Binary, Err: err}
	}
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if cmd.ProcessState == nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", inv.Binary, waitErr)
	}

	result := &types.Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		Usage:    usageOf(cmd.ProcessState),
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("invocation of %s interrupted: %w", inv.Script(), err)
	}
	if killed.Load() && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = TimeoutExitCode
	}
	if stdout.Truncated() || stderr.Truncated() {
		i.log.Warn("Captured output truncated", "script", inv.Script(),
			"stdoutBytes", stdout.TotalBytes(), "stderrBytes", stderr.TotalBytes())
	}

	span.SetAttributes(
		attribute.Int("exit_code", result.ExitCode),
		attribute.Bool("timed_out", result.TimedOut),
	)
	i.log.Debug("Invocation finished", "script", inv.Script(), "exitCode", result.ExitCode,
		"timedOut", result.TimedOut, "duration", duration)

	return result, nil
}

// CheckBinary verifies that binary exists before any script is run.
// A bare command name is looked up on PATH; anything containing a path
// separator must exist on disk.
func CheckBinary(binary string) error {
	if binary == "" {
		return fmt.Errorf("%w: no binary configured", ErrBinaryMissing)
	}
	if !strings.ContainsRune(binary, os.PathSeparator) && !strings.Contains(binary, "/") {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("%w: %s is not on PATH", ErrBinaryMissing, binary)
		}
		return nil
	}

	info, err := os.Stat(binary)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrBinaryMissing, binary)
	}
	if err != nil {
		return fmt.Errorf("failed to stat binary %s: %w", binary, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrBinaryMissing, binary)
	}
	return nil
}
