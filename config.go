package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/pome-lang/pome-harness/flags"
)

// Mode selects which harness a run drives.
type Mode string

const (
	ModeTest    Mode = "test"
	ModeBench   Mode = "bench"
	ModeCompare Mode = "compare"
)

// Config holds the application configuration
type Config struct {
	Mode      Mode
	Binary    string // Interpreter under test
	Extension string // Corpus file extension

	// test
	TestDir      string
	Timeout      time.Duration // Per-test limit
	RunInterval  time.Duration // Interval between test runs
	RunOnce      bool          // Indicates if the harness should exit after one test run
	ResultsTable bool

	// bench
	BenchDir string

	// compare
	TargetScript    string
	ReferenceBinary string
	ReferenceScript string

	MetricsConfig opmetrics.CLIConfig
	Out           io.Writer // Destination of the report, stdout unless overridden
	Log           log.Logger
}

// NewConfig creates a new Config from the cli context of a subcommand. The
// --config file must already have been applied with ApplyConfigFlag.
func NewConfig(ctx *cli.Context, log log.Logger, mode Mode) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	out := ctx.App.Writer
	if out == nil {
		out = os.Stdout
	}

	cfg := &Config{
		Mode:          mode,
		Binary:        ResolveBinary(ctx.String(flags.Binary.Name)),
		Extension:     ctx.String(flags.Extension.Name),
		MetricsConfig: metricsCfg,
		Out:           out,
		Log:           log,
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}

	switch mode {
	case ModeTest:
		cfg.TestDir = filepath.Clean(ctx.String(flags.TestDir.Name))
		cfg.Timeout = ctx.Duration(flags.Timeout.Name)
		cfg.RunInterval = ctx.Duration(flags.RunInterval.Name)
		cfg.RunOnce = cfg.RunInterval == 0
		cfg.ResultsTable = ctx.Bool(flags.ResultsTable.Name)
	case ModeBench:
		cfg.BenchDir = filepath.Clean(ctx.String(flags.BenchDir.Name))
	case ModeCompare:
		cfg.TargetScript = ctx.String(flags.TargetScript.Name)
		cfg.ReferenceBinary = ResolveBinary(ctx.String(flags.ReferenceBinary.Name))
		cfg.ReferenceScript = ctx.String(flags.ReferenceScript.Name)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the mode specific settings.
func (c *Config) Check() error {
	if c.Binary == "" {
		return errors.New("binary is required")
	}
	switch c.Mode {
	case ModeTest:
		if c.TestDir == "" {
			return errors.New("test directory is required")
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
		}
		if c.RunInterval < 0 {
			return fmt.Errorf("run interval must not be negative, got %s", c.RunInterval)
		}
	case ModeBench:
		if c.BenchDir == "" {
			return errors.New("benchmark directory is required")
		}
	case ModeCompare:
		if c.TargetScript == "" || c.ReferenceScript == "" {
			return errors.New("target and reference scripts are required")
		}
		if c.ReferenceBinary == "" {
			return errors.New("reference binary is required")
		}
	}
	return nil
}

// ResolveBinary makes a binary path absolute so it survives a change of working
// directory. Bare names are left for PATH lookup.
func ResolveBinary(binary string) string {
	if binary == "" || !strings.ContainsRune(binary, filepath.Separator) && !strings.Contains(binary, "/") {
		return binary
	}
	abs, err := filepath.Abs(binary)
	if err != nil {
		return binary
	}
	return abs
}
