package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	harness "github.com/pome-lang/pome-harness"
	"github.com/pome-lang/pome-harness/exitcodes"
	"github.com/pome-lang/pome-harness/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Telemetry is only exported when a collector is configured
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown, err := otelconfig.ConfigureOpenTelemetry(
			otelconfig.WithServiceName(app.Name),
			otelconfig.WithServiceVersion(app.Version),
		)
		if err != nil {
			log.Crit("Failed to setup open telemetry", "message", err)
		}
		defer shutdown()
	}

	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "pome-harness"
	app.Usage = "Test and benchmark harness for the Pome interpreter"
	app.Description = "pome-harness runs a corpus of scripts through the Pome interpreter and reports " +
		"pass/fail verdicts, benchmark timings or a speed comparison against a reference runtime"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Commands = []*cli.Command{
		{
			Name:   "test",
			Usage:  "Run the test corpus and classify every script",
			Flags:  cliapp.ProtectFlags(flags.TestFlags),
			Action: cliapp.LifecycleCmd(lifecycle(harness.ModeTest)),
		},
		{
			Name:   "bench",
			Usage:  "Time every script in the benchmark corpus",
			Flags:  cliapp.ProtectFlags(flags.BenchFlags),
			Action: cliapp.LifecycleCmd(lifecycle(harness.ModeBench)),
		},
		{
			Name:   "compare",
			Usage:  "Compare the interpreter's speed against a reference runtime",
			Flags:  cliapp.ProtectFlags(flags.CompareFlags),
			Action: cliapp.LifecycleCmd(lifecycle(harness.ModeCompare)),
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
	return app
}

// exitCode maps the typed errors returned by the harness onto process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case harness.IsMissingBinaryError(err):
		return exitcodes.MissingBinary
	case harness.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case harness.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		// Flag parsing and other unclassified errors
		return exitcodes.RuntimeErr
	}
}

// setupLogger applies the --config file and then builds the logger, so log
// settings from the file are honoured. Logs go to stderr; stdout carries the report.
func setupLogger(ctx *cli.Context) (log.Logger, error) {
	bootstrap := oplog.NewLogger(ctx.App.ErrWriter, oplog.ReadCLIConfig(ctx))
	if err := harness.ApplyConfigFlag(ctx, bootstrap); err != nil {
		return nil, err
	}
	return oplog.NewLogger(ctx.App.ErrWriter, oplog.ReadCLIConfig(ctx)), nil
}

func lifecycle(mode harness.Mode) cliapp.LifecycleAction {
	return func(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		logger, err := setupLogger(ctx)
		if err != nil {
			return nil, harness.NewRuntimeError(fmt.Errorf("failed to apply config file: %w", err))
		}
		oplog.SetGlobalLogHandler(logger.Handler())
		oplog.SetupDefaults()

		cfg, err := harness.NewConfig(ctx, logger, mode)
		if err != nil {
			// Wrap in RuntimeError to signal this should exit with code 2
			return nil, harness.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
		}
		cfg.Log.Debug("Config", "config", cfg)

		h, err := harness.New(cfg, Version, closeApp)
		if err != nil {
			return nil, harness.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
		}
		return h, nil
	}
}
