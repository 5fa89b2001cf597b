package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const template = `# borrowck settings

[check]
mode = "first"            # first | batch
strict_mutability = false
max_diagnostics = 100
jobs = 0                  # 0 = one worker per CPU
extensions = [".own"]

[cache]
enabled = false
dir = ""                  # empty = $XDG_CACHE_HOME/borrowck

[output]
format = "pretty"         # pretty | short | json
color = "auto"            # auto | on | off
`

// ErrExists is returned by Write when dir already has a manifest.
var ErrExists = errors.New(FileName + " already exists")

// Write creates a default borrowck.toml in dir and returns its path.
func Write(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	// O_EXCL: не затираем существующий манифест
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, fmt.Errorf("%s: %w", path, ErrExists)
		}
		return "", err
	}
	if _, err := f.WriteString(template); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
