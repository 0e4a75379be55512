package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "POME_HARNESS"

// Global flags, accepted before the subcommand.
var (
	Binary = &cli.StringFlag{
		Name:    "binary",
		Value:   "./build_new/pome",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BINARY"),
		Usage:   "Path to the interpreter binary. A bare name is looked up on PATH",
	}
	Extension = &cli.StringFlag{
		Name:    "ext",
		Value:   ".pome",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXT"),
		Usage:   "File extension of the scripts to discover",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Optional YAML or TOML file supplying defaults for any flag not set on the command line (eg. 'harness.yaml')",
	}
)

// test subcommand flags.
var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "test/unit_tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Directory holding the test corpus",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Wall-clock limit for each test script. A timed out script always fails",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ResultsTable = &cli.BoolFlag{
		Name:    "results-table",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_TABLE"),
		Usage:   "Print a table of every verdict after the summary",
	}
)

// bench subcommand flags.
var (
	BenchDir = &cli.StringFlag{
		Name:    "benchdir",
		Value:   "benchmarks",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BENCHDIR"),
		Usage:   "Directory holding the benchmark corpus",
	}
)

// compare subcommand flags.
var (
	TargetScript = &cli.StringFlag{
		Name:    "target-script",
		Value:   "benchmarks/loop_test.pome",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TARGET_SCRIPT"),
		Usage:   "Script run by the interpreter under test",
	}
	ReferenceBinary = &cli.StringFlag{
		Name:    "reference-binary",
		Value:   "python3",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REFERENCE_BINARY"),
		Usage:   "Reference runtime the interpreter is compared against",
	}
	ReferenceScript = &cli.StringFlag{
		Name:    "reference-script",
		Value:   "benchmarks/loop_test.py",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REFERENCE_SCRIPT"),
		Usage:   "Equivalent workload run by the reference runtime",
	}
)

// nonEmptyFlags have defaults but must not be cleared by the user.
var nonEmptyFlags = []*cli.StringFlag{
	Binary,
	Extension,
}

var optionalFlags = []cli.Flag{
	Binary,
	Extension,
	ConfigFile,
}

var (
	Flags        []cli.Flag
	TestFlags    = []cli.Flag{TestDir, Timeout, RunInterval, ResultsTable}
	BenchFlags   = []cli.Flag{BenchDir}
	CompareFlags = []cli.Flag{TargetScript, ReferenceBinary, ReferenceScript}
)

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

// AllFlags returns the global flags followed by every subcommand's flags.
func AllFlags() []cli.Flag {
	all := append([]cli.Flag{}, Flags...)
	all = append(all, TestFlags...)
	all = append(all, BenchFlags...)
	return append(all, CompareFlags...)
}

// CheckRequired verifies that flags with a default were not set to blank.
func CheckRequired(ctx *cli.Context) error {
	for _, f := range nonEmptyFlags {
		if ctx.String(f.Name) == "" {
			return fmt.Errorf("flag %s must not be empty", f.Name)
		}
	}
	return nil
}
