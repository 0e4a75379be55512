package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	harness "github.com/pome-lang/pome-harness"
	"github.com/pome-lang/pome-harness/exitcodes"
	"github.com/pome-lang/pome-harness/flags"
	"github.com/pome-lang/pome-harness/invoker"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitcodes.Success},
		{"test failure", harness.NewTestFailureError("1/2 passed"), exitcodes.TestFailure},
		{"runtime error", harness.NewRuntimeError(errors.New("bad config")), exitcodes.RuntimeErr},
		{"missing binary", harness.NewMissingBinaryError(invoker.ErrBinaryMissing), exitcodes.MissingBinary},
		{"wrapped", fmt.Errorf("failed to start: %w", harness.NewTestFailureError("0/1 passed")), exitcodes.TestFailure},
		{"unclassified", errors.New("flag provided but not defined"), exitcodes.RuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"test", "bench", "compare"}, names)
	assert.True(t, strings.HasPrefix(app.Version, Version))
}

// runApp runs the CLI in-process and returns the exit code it would have used.
func runApp(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := exitcodes.Success

	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(_ *cli.Context, err error) {
		code = exitCode(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := app.RunContext(ctx, append([]string{"pome-harness"}, args...))
	if err != nil && code == exitcodes.Success {
		code = exitCode(err)
	}
	return code, stdout.String()
}

func writeCorpus(t *testing.T, scripts map[string]string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestRunTestCommand(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		dir := writeCorpus(t, map[string]string{
			"a.pome":        "exit 0\n",
			"b_fail_x.pome": "exit 2\n",
		})
		code, out := runApp(t, "--binary", "/bin/sh", "test", "--testdir", dir)
		assert.Equal(t, exitcodes.Success, code)
		assert.Contains(t, out, "Result: 2/2 passed")
	})

	t.Run("one broken", func(t *testing.T) {
		dir := writeCorpus(t, map[string]string{
			"a.pome": "exit 0\n",
			"b.pome": "exit 7\n",
		})
		code, out := runApp(t, "--binary", "/bin/sh", "test", "--testdir", dir)
		assert.Equal(t, exitcodes.TestFailure, code)
		assert.Contains(t, out, "FAIL (Exit 7)")
		assert.Contains(t, out, "Result: 1/2 passed")
	})

	t.Run("missing binary", func(t *testing.T) {
		dir := writeCorpus(t, map[string]string{"a.pome": "exit 0\n"})
		code, out := runApp(t, "--binary", filepath.Join(dir, "pome"), "test", "--testdir", dir)
		assert.Equal(t, exitcodes.MissingBinary, code)
		assert.NotContains(t, out, "Testing")
	})

	t.Run("missing directory", func(t *testing.T) {
		dir := writeCorpus(t, nil)
		code, _ := runApp(t, "--binary", "/bin/sh", "test", "--testdir", filepath.Join(dir, "absent"))
		assert.Equal(t, exitcodes.RuntimeErr, code)
	})

	t.Run("empty corpus", func(t *testing.T) {
		dir := writeCorpus(t, nil)
		code, out := runApp(t, "--binary", "/bin/sh", "test", "--testdir", dir)
		assert.Equal(t, exitcodes.Success, code)
		assert.Contains(t, out, "Result: 0/0 passed")
	})
}

func TestRunBenchCommand(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"loop.pome":   "echo 'Time: 0.01s'\n",
		"broken.pome": "exit 3\n",
	})
	code, out := runApp(t, "--binary", "/bin/sh", "bench", "--benchdir", dir)
	assert.Equal(t, exitcodes.Success, code, "a script exiting non-zero does not fail the run")
	assert.Contains(t, out, "Error (Exit 3):")
	assert.Contains(t, out, "  Internal:  Time: 0.01s")
}

func TestRunCompareCommand(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"loop.pome": "exit 0\n",
		"loop.py":   "exit 0\n",
	})
	code, out := runApp(t, "--binary", "/bin/sh", "compare",
		"--target-script", filepath.Join(dir, "loop.pome"),
		"--reference-binary", "/bin/sh",
		"--reference-script", filepath.Join(dir, "loop.py"))
	assert.Equal(t, exitcodes.Success, code)
	assert.Contains(t, out, "--- Results ---")

	code, _ = runApp(t, "--binary", filepath.Join(dir, "missing"), "compare",
		"--target-script", filepath.Join(dir, "loop.pome"),
		"--reference-binary", "/bin/sh",
		"--reference-script", filepath.Join(dir, "loop.py"))
	assert.Equal(t, exitcodes.RuntimeErr, code)
}

func TestSetupLoggerHonoursConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log.level: debug\n"), 0o644))

	tests := []struct {
		name  string
		args  []string
		debug bool
	}{
		{name: "default level", args: []string{"test"}, debug: false},
		{name: "level from config file", args: []string{"--config", configPath, "test"}, debug: true},
		{name: "flag overrides config file", args: []string{"--config", configPath, "--log.level", "info", "test"}, debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logger log.Logger
			app := &cli.App{
				Name:      "pome-harness",
				Flags:     cliapp.ProtectFlags(flags.Flags),
				Writer:    &bytes.Buffer{},
				ErrWriter: &bytes.Buffer{},
				Commands: []*cli.Command{{
					Name:  "test",
					Flags: cliapp.ProtectFlags(flags.TestFlags),
					Action: func(ctx *cli.Context) error {
						var err error
						logger, err = setupLogger(ctx)
						return err
					},
				}},
			}
			require.NoError(t, app.Run(append([]string{"pome-harness"}, tt.args...)))
			require.NotNil(t, logger)
			assert.Equal(t, tt.debug, logger.Enabled(context.Background(), log.LevelDebug))
			assert.True(t, logger.Enabled(context.Background(), log.LevelInfo))
		})
	}
}

func TestSetupLoggerRejectsBadConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("no.such.setting: 1\n"), 0o644))

	code, out := runApp(t, "--config", configPath, "test")
	assert.Equal(t, exitcodes.RuntimeErr, code)
	assert.NotContains(t, out, "Testing")
}
