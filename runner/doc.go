// Package runner executes the test corpus and classifies every script.
//
// The runner walks the registry's test cases in discovery order, invokes the
// interpreter once per case with the configured timeout, and turns each Result
// into a Verdict with Judge. Progress is streamed to a Reporter as it happens
// and the run ends with a Summary of passed versus total cases.
package runner
