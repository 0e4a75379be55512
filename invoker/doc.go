// Package invoker runs the interpreter binary against a single script.
//
// Each call to Invoke spawns exactly one child process, captures its standard
// output and standard error, and reports the exit code together with the
// wall-clock duration and the resource usage of that child. A timeout kills the
// child's whole process group and yields a fully populated Result with TimedOut
// set. A binary that cannot be started is reported as a *LaunchError instead of
// a Result, so callers can tell "binary absent" apart from "binary ran and failed".
package invoker
