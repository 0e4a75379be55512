package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pome-lang/pome-harness/types"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("print(1)\n"), 0o644))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		expected types.Expectation
	}{
		{path: "test/unit_tests/arith.pome", expected: types.ExpectSuccess},
		{path: "test/unit_tests/strict_fail.pome", expected: types.ExpectFailure},
		{path: "test/unit_tests/failing_import.pome", expected: types.ExpectFailure},
		{path: "test/fail_cases/arith.pome", expected: types.ExpectFailure},
		{path: "test/unit_tests/FAIL.pome", expected: types.ExpectSuccess},
		{path: "test/unit_tests/Failure.pome", expected: types.ExpectSuccess},
		{path: "", expected: types.ExpectSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.path))
		})
	}
}

func TestDiscoverSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "zeta.pome", "alpha.pome", "mid_fail.pome", "notes.txt", "alpha.pome.bak")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pome"), 0o755))

	scripts, err := Discover(dir, ".pome")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "alpha.pome"),
		filepath.Join(dir, "mid_fail.pome"),
		filepath.Join(dir, "zeta.pome"),
	}, scripts)
}

func TestDiscoverFollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	touch(t, dir, "real.pome")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.pome"), filepath.Join(dir, "linked.pome")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "subdir"), filepath.Join(dir, "dirlink.pome")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling.pome")))

	scripts, err := Discover(dir, ".pome")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "linked.pome"),
		filepath.Join(dir, "real.pome"),
	}, scripts)
}

func TestDiscoverDefaultsExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pome", "b.py")

	scripts, err := Discover(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pome")}, scripts)
}

func TestDiscoverEmptyDirectory(t *testing.T) {
	scripts, err := Discover(t.TempDir(), ".pome")
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), ".pome")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Discover("", ".pome")
	require.Error(t, err)
}

func TestDiscoverIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "c.pome", "a.pome", "b.pome", "B.pome")

	first, err := Discover(dir, ".pome")
	require.NoError(t, err)
	second, err := Discover(dir, ".pome")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(dir, "B.pome"), first[0], "byte-wise ordering puts upper case first")
}

func TestRegistryTestCases(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "ok.pome", "strict_fail.pome")

	reg, err := NewRegistry(Config{Log: testlog.Logger(t, log.LevelInfo), Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, reg.Dir())

	cases, err := reg.TestCases()
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, types.TestCase{Path: filepath.Join(dir, "ok.pome"), Expectation: types.ExpectSuccess}, cases[0])
	assert.Equal(t, types.TestCase{Path: filepath.Join(dir, "strict_fail.pome"), Expectation: types.ExpectFailure}, cases[1])

	// The corpus is re-read on every call.
	touch(t, dir, "added.pome")
	cases, err = reg.TestCases()
	require.NoError(t, err)
	assert.Len(t, cases, 3)
}

func TestNewRegistryRequiresDir(t *testing.T) {
	_, err := NewRegistry(Config{})
	require.EqualError(t, err, "corpus directory is required")
}
