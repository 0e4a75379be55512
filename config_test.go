package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/pome-lang/pome-harness/flags"
)

// runCommand parses args with the real flag set and returns the config built
// for the named subcommand.
func runCommand(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	action := func(mode Mode) cli.ActionFunc {
		return func(ctx *cli.Context) error {
			logger := testlog.Logger(t, log.LevelInfo)
			if cfgErr = ApplyConfigFlag(ctx, logger); cfgErr != nil {
				return nil
			}
			cfg, cfgErr = NewConfig(ctx, logger, mode)
			return nil
		}
	}
	app := &cli.App{
		Name:  "pome-harness",
		Flags: flags.Flags,
		Commands: []*cli.Command{
			{Name: "test", Flags: flags.TestFlags, Action: action(ModeTest)},
			{Name: "bench", Flags: flags.BenchFlags, Action: action(ModeBench)},
			{Name: "compare", Flags: flags.CompareFlags, Action: action(ModeCompare)},
		},
	}
	require.NoError(t, app.Run(append([]string{"pome-harness"}, args...)))
	return cfg, cfgErr
}

func writeConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfigTestDefaults(t *testing.T) {
	cfg, err := runCommand(t, "test")
	require.NoError(t, err)

	abs, err := filepath.Abs("./build_new/pome")
	require.NoError(t, err)

	assert.Equal(t, ModeTest, cfg.Mode)
	assert.Equal(t, abs, cfg.Binary)
	assert.Equal(t, ".pome", cfg.Extension)
	assert.Equal(t, filepath.Clean("test/unit_tests"), cfg.TestDir)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.RunOnce)
	assert.False(t, cfg.ResultsTable)
	assert.False(t, cfg.MetricsConfig.Enabled)
	assert.NotNil(t, cfg.Out)
}

func TestNewConfigTestFlags(t *testing.T) {
	cfg, err := runCommand(t, "--binary", "pome", "--ext", "pm", "test",
		"--testdir", "corpus/", "--timeout", "2s", "--run-interval", "1m", "--results-table")
	require.NoError(t, err)

	assert.Equal(t, "pome", cfg.Binary, "bare names are left for PATH lookup")
	assert.Equal(t, ".pm", cfg.Extension)
	assert.Equal(t, "corpus", cfg.TestDir)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.False(t, cfg.RunOnce)
	assert.True(t, cfg.ResultsTable)
}

func TestNewConfigRejectsBadValues(t *testing.T) {
	_, err := runCommand(t, "test", "--timeout", "0s")
	assert.ErrorContains(t, err, "timeout must be positive")

	_, err = runCommand(t, "--binary", "", "test")
	assert.ErrorContains(t, err, "missing required flags")
}

func TestNewConfigBenchAndCompare(t *testing.T) {
	cfg, err := runCommand(t, "bench", "--benchdir", "perf")
	require.NoError(t, err)
	assert.Equal(t, ModeBench, cfg.Mode)
	assert.Equal(t, "perf", cfg.BenchDir)

	cfg, err = runCommand(t, "compare")
	require.NoError(t, err)
	assert.Equal(t, ModeCompare, cfg.Mode)
	assert.Equal(t, "benchmarks/loop_test.pome", cfg.TargetScript)
	assert.Equal(t, "python3", cfg.ReferenceBinary)
	assert.Equal(t, "benchmarks/loop_test.py", cfg.ReferenceScript)
}

func TestConfigFileYAML(t *testing.T) {
	path := writeConfigFile(t, "harness.yaml", `
binary: pome
testdir: suites/unit
timeout: 750ms
results-table: true
benchdir: perf
`)
	cfg, err := runCommand(t, "--config", path, "test", "--testdir", "cli/dir")
	require.NoError(t, err)

	assert.Equal(t, "pome", cfg.Binary)
	assert.Equal(t, "cli/dir", cfg.TestDir, "command line wins over the config file")
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.ResultsTable)
}

func TestConfigFileTOML(t *testing.T) {
	path := writeConfigFile(t, "harness.toml", `
ext = ".pm"
benchdir = "perf"
"metrics.enabled" = true
"metrics.port" = 9100
`)
	cfg, err := runCommand(t, "--config", path, "bench")
	require.NoError(t, err)

	assert.Equal(t, ".pm", cfg.Extension)
	assert.Equal(t, "perf", cfg.BenchDir)
	assert.True(t, cfg.MetricsConfig.Enabled)
	assert.Equal(t, 9100, cfg.MetricsConfig.ListenPort)
}

func TestConfigFileEnvWins(t *testing.T) {
	t.Setenv("POME_HARNESS_TARGET_SCRIPT", "env.pome")
	path := writeConfigFile(t, "harness.yml", "target-script: file.pome\n")

	cfg, err := runCommand(t, "--config", path, "compare")
	require.NoError(t, err)
	assert.Equal(t, "env.pome", cfg.TargetScript)
}

func TestConfigFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"unknown setting", "c.yaml", "colour: blue\n", "unknown setting"},
		{"nested value", "c.yaml", "testdir:\n  path: x\n", "unsupported value type"},
		{"bad duration", "c.yaml", "timeout: soon\n", "invalid setting"},
		{"unsupported format", "c.json", "{}", "unsupported config file extension"},
		{"malformed yaml", "c.yaml", "testdir: [\n", "failed to parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.file, tt.body)
			_, err := runCommand(t, "--config", path, "test")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigFileMissing(t *testing.T) {
	_, err := runCommand(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "test")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveBinary(t *testing.T) {
	assert.Equal(t, "", ResolveBinary(""))
	assert.Equal(t, "python3", ResolveBinary("python3"))
	assert.Equal(t, "/usr/bin/env", ResolveBinary("/usr/bin/env"))

	abs, err := filepath.Abs("build/pome")
	require.NoError(t, err)
	assert.Equal(t, abs, ResolveBinary("build/pome"))
}
