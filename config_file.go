package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pome-lang/pome-harness/flags"
)

// LoadConfigFile reads a flat map of flag names to values from a .yaml, .yml or
// .toml file.
func LoadConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	values := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	case ".toml":
		err = toml.Unmarshal(data, &values)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q, expected .yaml, .yml or .toml", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return values, nil
}

// ApplyConfigFlag applies the file named by --config, if one was given. It has
// to run before the logger is built so log settings in the file take effect.
func ApplyConfigFlag(ctx *cli.Context, log log.Logger) error {
	path := ctx.String(flags.ConfigFile.Name)
	if path == "" {
		return nil
	}
	return ApplyConfigFile(ctx, log, path)
}

// ApplyConfigFile sets every flag named in the config file that was not already
// given on the command line or through its environment variable. Settings that
// belong to another subcommand are skipped; unknown settings are an error.
func ApplyConfigFile(ctx *cli.Context, log log.Logger, path string) error {
	values, err := LoadConfigFile(path)
	if err != nil {
		return err
	}

	known := make(map[string]bool)
	for _, f := range flags.AllFlags() {
		known[f.Names()[0]] = true
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !known[name] || name == flags.ConfigFile.Name {
			return fmt.Errorf("unknown setting %q in config file %s", name, path)
		}
		if ctx.IsSet(name) {
			log.Debug("Config file setting overridden", "name", name)
			continue
		}
		value, err := settingString(values[name])
		if err != nil {
			return fmt.Errorf("invalid setting %q in config file %s: %w", name, path, err)
		}
		if !definesFlag(ctx, name) {
			log.Debug("Config file setting not used by this command", "name", name)
			continue
		}
		if err := ctx.Set(name, value); err != nil {
			return fmt.Errorf("invalid setting %q in config file %s: %w", name, path, err)
		}
		log.Debug("Applied config file setting", "name", name, "value", value)
	}
	return nil
}

// definesFlag reports whether the running command or one of its parents
// accepts the named flag.
func definesFlag(ctx *cli.Context, name string) bool {
	defined := append([]cli.Flag{}, ctx.App.Flags...)
	for _, c := range ctx.Lineage() {
		if c.Command != nil {
			defined = append(defined, c.Command.Flags...)
		}
	}
	for _, f := range defined {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}
	return false
}

func settingString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
