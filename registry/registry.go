// Package registry discovers script corpora on disk and tags test cases with
// their expected outcome.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/pome-lang/pome-harness/types"
)

const (
	// DefaultExtension selects which files in a corpus directory are scripts.
	DefaultExtension = ".pome"

	// FailMarker marks a test as expected to be rejected by the interpreter.
	FailMarker = "fail"
)

// Classify derives the expected outcome of a test from its path. Any path
// containing FailMarker, in the file name or a parent directory, is an
// expect-failure test.
func Classify(path string) types.Expectation {
	if strings.Contains(path, FailMarker) {
		return types.ExpectFailure
	}
	return types.ExpectSuccess
}

// Discover lists the regular files in dir whose name ends with ext, sorted by
// file name and joined with dir. Subdirectories are not searched.
func Discover(dir, ext string) ([]string, error) {
	if dir == "" {
		return nil, errors.New("directory cannot be empty")
	}
	if ext == "" {
		ext = DefaultExtension
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		mode := entry.Type()
		if mode&os.ModeSymlink != 0 {
			// Symlinks count when they resolve to a regular file.
			info, err := os.Stat(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			mode = info.Mode()
		}
		if !mode.IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Registry manages a script corpus directory
type Registry struct {
	config Config
}

// Config contains registry configuration
type Config struct {
	Log       log.Logger
	Dir       string
	Extension string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Dir == "" {
		return nil, errors.New("corpus directory is required")
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Registry{config: cfg}, nil
}

// Dir returns the corpus directory
func (r *Registry) Dir() string {
	return r.config.Dir
}

// Scripts lists the corpus in discovery order. The directory is read again on
// every call so a long-running harness sees added or removed scripts.
func (r *Registry) Scripts() ([]string, error) {
	scripts, err := Discover(r.config.Dir, r.config.Extension)
	if err != nil {
		return nil, err
	}
	r.config.Log.Debug("Discovered scripts", "dir", r.config.Dir, "ext", r.config.Extension, "count", len(scripts))
	return scripts, nil
}

// TestCases lists the corpus as test cases, each tagged once with its expectation.
func (r *Registry) TestCases() ([]types.TestCase, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return nil, err
	}
	cases := make([]types.TestCase, len(scripts))
	for i, script := range scripts {
		cases[i] = types.TestCase{Path: script, Expectation: Classify(script)}
	}
	return cases, nil
}
