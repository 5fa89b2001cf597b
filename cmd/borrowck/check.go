package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"borrowck/internal/borrow"
	"borrowck/internal/config"
	"borrowck/internal/diag"
	"borrowck/internal/diagfmt"
	"borrowck/internal/driver"
	"borrowck/internal/observ"
	"borrowck/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file|directory>...",
	Short: "Check operation logs for ownership violations",
	Long: `Check every log in the given files, or in every *.own file found under the
given directories. Exits with status 1 when a violation or syntax error is found`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|short|json)")
	checkCmd.Flags().String("mode", "first", "stop at the first violation of a log or report all (first|batch)")
	checkCmd.Flags().Bool("strict-mutability", false, "reject exclusive borrows of immutable bindings")
	checkCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	checkCmd.Flags().Bool("cache", false, "reuse results of unchanged files from the disk cache")
	checkCmd.Flags().Bool("progress", false, "show a live progress view when stdout is a terminal")
	checkCmd.Flags().Bool("timings", false, "print per-phase timings to stderr")
	checkCmd.Flags().Bool("no-notes", false, "omit notes pointing at related operations")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
}

// checkFlags are the check-specific settings after merging flags over the
// manifest.
type checkFlags struct {
	format   diagfmt.Format
	opts     borrow.Options
	jobs     int
	cache    bool
	progress bool
	timings  bool
	notes    bool
	pathMode diagfmt.PathMode
}

func readCheckFlags(cmd *cobra.Command, s *session) (checkFlags, error) {
	flags := cmd.Flags()
	cf := checkFlags{
		format: s.cfg.Format(),
		opts:   s.cfg.CheckOptions(),
		jobs:   s.cfg.Check.Jobs,
		cache:  s.cfg.Cache.Enabled,
	}
	var err error

	if flags.Changed("format") {
		formatStr, err := flags.GetString("format")
		if err != nil {
			return cf, fmt.Errorf("failed to get format flag: %w", err)
		}
		if cf.format, err = diagfmt.ParseFormat(formatStr); err != nil {
			return cf, err
		}
	}
	if flags.Changed("mode") {
		modeStr, err := flags.GetString("mode")
		if err != nil {
			return cf, fmt.Errorf("failed to get mode flag: %w", err)
		}
		if cf.opts.Mode, err = borrow.ParseMode(modeStr); err != nil {
			return cf, err
		}
	}
	if flags.Changed("strict-mutability") {
		if cf.opts.StrictMutability, err = flags.GetBool("strict-mutability"); err != nil {
			return cf, fmt.Errorf("failed to get strict-mutability flag: %w", err)
		}
	}
	if flags.Changed("jobs") {
		if cf.jobs, err = flags.GetInt("jobs"); err != nil {
			return cf, fmt.Errorf("failed to get jobs flag: %w", err)
		}
	}
	if flags.Changed("cache") {
		if cf.cache, err = flags.GetBool("cache"); err != nil {
			return cf, fmt.Errorf("failed to get cache flag: %w", err)
		}
	}
	if cf.progress, err = flags.GetBool("progress"); err != nil {
		return cf, fmt.Errorf("failed to get progress flag: %w", err)
	}
	if cf.timings, err = flags.GetBool("timings"); err != nil {
		return cf, fmt.Errorf("failed to get timings flag: %w", err)
	}
	noNotes, err := flags.GetBool("no-notes")
	if err != nil {
		return cf, fmt.Errorf("failed to get no-notes flag: %w", err)
	}
	cf.notes = !noNotes
	fullPath, err := flags.GetBool("fullpath")
	if err != nil {
		return cf, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	cf.pathMode = diagfmt.PathModeAuto
	if fullPath {
		cf.pathMode = diagfmt.PathModeAbsolute
	}
	return cf, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	cf, err := readCheckFlags(cmd, s)
	if err != nil {
		return err
	}

	opts := driver.Options{
		Check:          cf.opts,
		MaxDiagnostics: s.maxDiagnostics,
		Jobs:           cf.jobs,
		Extensions:     s.cfg.Check.Extensions,
		EnableTimings:  cf.timings,
		Logger:         s.log,
	}
	if cf.cache {
		cache, err := openCache(s.cfg.Cache.Dir, s.manifest)
		if err != nil {
			// без кэша проверка всё равно возможна
			s.log.Warn("disk cache disabled", slog.Any("err", err))
		} else {
			opts.Cache = cache
		}
	}

	ctx := cmd.Context()
	var (
		fileSet *source.FileSet
		results []driver.FileResult
	)
	if cf.progress && cf.format != diagfmt.FormatJSON && isTerminal(os.Stdout) {
		exts := s.cfg.Check.Extensions
		if len(exts) == 0 {
			exts = []string{driver.DefaultExtension}
		}
		files, err := driver.ExpandPaths(args, exts)
		if err != nil {
			return err
		}
		fileSet, results, err = runCheckWithUI(ctx, "borrowck check", files, opts)
		if err != nil {
			return err
		}
	} else {
		fileSet, results, err = driver.CheckPaths(ctx, args, opts)
		if err != nil {
			return err
		}
	}

	bag := diag.NewBag(0)
	failed, violations := 0, 0
	var timings []observ.Report
	for i := range results {
		r := &results[i]
		bag.Merge(r.Bag)
		violations += r.Violations
		if r.Failed() {
			failed++
		}
		if r.Timing != nil {
			timings = append(timings, *r.Timing)
		}
	}
	bag.Sort()

	out := cmd.OutOrStdout()
	if err := printDiagnostics(out, bag, fileSet, cf, s.color); err != nil {
		return err
	}
	if cf.format != diagfmt.FormatJSON && !s.quiet {
		printCheckSummary(out, len(results), failed, violations)
	}
	if cf.timings {
		fmt.Fprint(cmd.ErrOrStderr(), observ.Merge(timings...).Summary())
	}

	if failed > 0 {
		return errViolations
	}
	return nil
}

func printDiagnostics(out io.Writer, bag *diag.Bag, fs *source.FileSet, cf checkFlags, useColor bool) error {
	switch cf.format {
	case diagfmt.FormatJSON:
		return diagfmt.JSON(out, bag, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         cf.pathMode,
			IncludeNotes:     cf.notes,
		})
	case diagfmt.FormatShort:
		diagfmt.Short(out, bag, fs, cf.pathMode)
	default:
		diagfmt.Pretty(out, bag, fs, diagfmt.PrettyOpts{
			Color:     useColor,
			Context:   1,
			PathMode:  cf.pathMode,
			ShowNotes: cf.notes,
		})
	}
	return nil
}

func printCheckSummary(out io.Writer, files, failed, violations int) {
	if failed == 0 {
		fmt.Fprintf(out, "%s %d file(s) checked, no violations\n", color.GreenString("ok:"), files)
		return
	}
	fmt.Fprintf(out, "\n%s %d violation(s) in %d of %d file(s)\n", color.RedString("failed:"), violations, failed, files)
}

// openCache opens the disk cache. A relative [cache].dir is resolved
// against the manifest directory.
func openCache(dir string, manifest *config.Manifest) (*driver.DiskCache, error) {
	if dir == "" {
		return driver.OpenDiskCache("borrowck")
	}
	if !filepath.IsAbs(dir) && manifest != nil {
		dir = filepath.Join(manifest.Root, dir)
	}
	return driver.OpenDiskCacheAt(dir)
}
