package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest is a loaded borrowck.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Find walks up from startDir to locate borrowck.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Resolve loads the manifest at explicit, or the nearest one above
// startDir when explicit is empty. Without a manifest it returns Default
// and a nil *Manifest.
func Resolve(explicit, startDir string) (Config, *Manifest, error) {
	path := explicit
	if path == "" {
		found, ok, err := Find(startDir)
		if err != nil {
			return Config{}, nil, err
		}
		if !ok {
			return Default(), nil, nil
		}
		path = found
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, &Manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, nil
}
