package types

import (
	"fmt"
)

// Expectation is the outcome a test case is expected to produce.
type Expectation int

const (
	ExpectSuccess Expectation = iota
	ExpectFailure
)

// String implements the Stringer interface for Expectation
func (e Expectation) String() string {
	switch e {
	case ExpectSuccess:
		return "expect-success"
	case ExpectFailure:
		return "expect-failure"
	default:
		return fmt.Sprintf("expectation(%d)", int(e))
	}
}

// TestStatus represents the possible states of a test verdict
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// TestCase is one discovered script together with its expected outcome.
type TestCase struct {
	Path        string
	Expectation Expectation
}

// Verdict is the pass/fail classification of one TestCase.
type Verdict struct {
	Case      TestCase
	Passed    bool
	Reason    string
	Result    *Result // Nil if the binary could not be launched
	LaunchErr error
}

// Status maps the verdict onto a TestStatus.
func (v Verdict) Status() TestStatus {
	if v.Passed {
		return TestStatusPass
	}
	return TestStatusFail
}

// Stderr returns the captured standard error of the run, if there was one.
func (v Verdict) Stderr() string {
	if v.Result == nil {
		return ""
	}
	return v.Result.Stderr
}

// Summary is the tally of a test run.
type Summary struct {
	Passed int
	Total  int
}

// Add folds a verdict into the summary.
func (s *Summary) Add(v Verdict) {
	s.Total++
	if v.Passed {
		s.Passed++
	}
}

// Failed returns the number of failed verdicts.
func (s Summary) Failed() int {
	return s.Total - s.Passed
}

// OK reports whether every test passed. An empty run is OK.
func (s Summary) OK() bool {
	return s.Passed == s.Total
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d passed", s.Passed, s.Total)
}
