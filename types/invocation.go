// Package types contains shared types used across the pome-harness packages
package types

import (
	"fmt"
	"time"
)

// Invocation describes a single run of the interpreter binary.
type Invocation struct {
	Binary  string
	Args    []string
	Timeout time.Duration // Zero means the child may run indefinitely
}

// NewInvocation builds the `<binary> <script>` invocation used by every harness mode.
func NewInvocation(binary string, script string, timeout time.Duration) Invocation {
	return Invocation{
		Binary:  binary,
		Args:    []string{script},
		Timeout: timeout,
	}
}

// Script returns the script argument of the invocation, if any.
func (i Invocation) Script() string {
	if len(i.Args) == 0 {
		return ""
	}
	return i.Args[0]
}

// ResourceUsage is the CPU and memory consumption of one terminated child process.
type ResourceUsage struct {
	UserTime    time.Duration
	SystemTime  time.Duration
	MaxRSSBytes int64
}

// Result captures the process-level outcome of an Invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration  // Wall-clock time from start to exit
	TimedOut bool           // The child was killed after exceeding its timeout
	Usage    *ResourceUsage // Nil when the platform cannot report per-child usage
}

// Succeeded reports whether the child exited with code 0 on its own.
func (r *Result) Succeeded() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.TimedOut {
		return fmt.Sprintf("timed out after %s", r.Duration)
	}
	return fmt.Sprintf("exit %d in %s", r.ExitCode, r.Duration)
}
