// Package exitcodes defines the standard exit codes used by pome-harness.
package exitcodes

// Exit code constants used by pome-harness.
// CI pipelines gate on these values:
//
// * Success (0): all tests passed, or a benchmark/comparison ran without a fatal error
// * TestFailure (1): one or more test verdicts failed
// * RuntimeErr (2): configuration errors, unreadable corpora or a script that could not be launched
// * MissingBinary (3): the interpreter binary does not exist, nothing was run
const (
	Success       = 0
	TestFailure   = 1
	RuntimeErr    = 2
	MissingBinary = 3
)
