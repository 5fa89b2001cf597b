// Package config loads borrowck.toml, the per-project settings file.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"borrowck/internal/borrow"
	"borrowck/internal/diagfmt"
)

// FileName is the manifest looked up by Find.
const FileName = "borrowck.toml"

// Config mirrors the sections of borrowck.toml.
type Config struct {
	Check  CheckConfig  `toml:"check"`
	Cache  CacheConfig  `toml:"cache"`
	Output OutputConfig `toml:"output"`
}

type CheckConfig struct {
	Mode             string   `toml:"mode"`
	StrictMutability bool     `toml:"strict_mutability"`
	MaxDiagnostics   int      `toml:"max_diagnostics"`
	Jobs             int      `toml:"jobs"`
	Extensions       []string `toml:"extensions"`
}

type CacheConfig struct {
	Enabled bool `toml:"enabled"`
	// Dir overrides the cache location; empty means $XDG_CACHE_HOME/borrowck.
	Dir string `toml:"dir"`
}

type OutputConfig struct {
	Format string `toml:"format"`
	Color  string `toml:"color"`
}

// Default returns the settings used when no manifest exists.
func Default() Config {
	return Config{
		Check: CheckConfig{
			Mode:           "first",
			MaxDiagnostics: 100,
			Extensions:     []string{".own"},
		},
		Output: OutputConfig{
			Format: "pretty",
			Color:  "auto",
		},
	}
}

// Load decodes path on top of Default. Unknown keys are an error so that
// typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := borrow.ParseMode(c.Check.Mode); err != nil {
		return fmt.Errorf("[check].mode: %w", err)
	}
	if c.Check.MaxDiagnostics < 0 {
		return fmt.Errorf("[check].max_diagnostics must be >= 0, got %d", c.Check.MaxDiagnostics)
	}
	if c.Check.Jobs < 0 {
		return fmt.Errorf("[check].jobs must be >= 0, got %d", c.Check.Jobs)
	}
	for _, ext := range c.Check.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("[check].extensions: %q must start with '.'", ext)
		}
	}
	if _, err := diagfmt.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("[output].format: %w", err)
	}
	switch c.Output.Color {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("[output].color: invalid value %q (expected: auto|on|off)", c.Output.Color)
	}
	return nil
}

// CheckOptions converts the [check] section. Validate must have passed.
func (c *Config) CheckOptions() borrow.Options {
	mode, _ := borrow.ParseMode(c.Check.Mode)
	return borrow.Options{Mode: mode, StrictMutability: c.Check.StrictMutability}
}

// Format returns the parsed [output].format.
func (c *Config) Format() diagfmt.Format {
	f, _ := diagfmt.ParseFormat(c.Output.Format)
	return f
}
