package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"borrowck/internal/config"
)

// session is the state shared by every subcommand: resolved settings,
// logger and tracer.
type session struct {
	cfg            config.Config
	manifest       *config.Manifest
	log            *slog.Logger
	color          bool
	quiet          bool
	maxDiagnostics int
	cleanup        func()
}

// openSession reads global flags, loads borrowck.toml and installs logging
// and tracing. Flags set explicitly win over the manifest.
func openSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Root().PersistentFlags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, manifest, err := config.Resolve(configPath, ".")
	if err != nil {
		return nil, err
	}

	colorMode := cfg.Output.Color
	if flags.Changed("color") {
		if colorMode, err = flags.GetString("color"); err != nil {
			return nil, fmt.Errorf("failed to get color flag: %w", err)
		}
	}
	useColor, err := resolveColor(colorMode, os.Stdout)
	if err != nil {
		return nil, err
	}
	color.NoColor = !useColor

	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	levelStr, err := flags.GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	logColor, err := resolveColor(colorMode, os.Stderr)
	if err != nil {
		return nil, err
	}
	logger, err := setupLogger(cmd.ErrOrStderr(), levelStr, quiet, logColor)
	if err != nil {
		return nil, err
	}

	maxDiagnostics := cfg.Check.MaxDiagnostics
	if flags.Changed("max-diagnostics") {
		if maxDiagnostics, err = flags.GetInt("max-diagnostics"); err != nil {
			return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
		}
	}

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return nil, err
	}
	stopProf, err := setupProfiling(cmd)
	if err != nil {
		stopTrace()
		return nil, err
	}
	cleanup := func() {
		stopProf()
		stopTrace()
	}
	if manifest != nil {
		logger.Debug("using manifest", slog.String("path", manifest.Path))
	}
	return &session{
		cfg:            cfg,
		manifest:       manifest,
		log:            logger,
		color:          useColor,
		quiet:          quiet,
		maxDiagnostics: maxDiagnostics,
		cleanup:        cleanup,
	}, nil
}

func (s *session) close() {
	if s != nil && s.cleanup != nil {
		s.cleanup()
	}
}

// resolveColor decides whether output to f is colorized. NO_COLOR disables
// auto mode.
func resolveColor(mode string, f *os.File) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return os.Getenv("NO_COLOR") == "" && isTerminal(f), nil
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
}
