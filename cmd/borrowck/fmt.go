package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"borrowck/internal/diag"
	"borrowck/internal/diagfmt"
	"borrowck/internal/oplog"
	"borrowck/internal/source"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [flags] <file>...",
	Short: "Print operation logs in canonical form",
	Long: `Rewrite operation logs with one operation per line and scopes indented.
Comments are not preserved. Files with syntax errors are left untouched`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFmt,
}

func init() {
	fmtCmd.Flags().BoolP("write", "w", false, "write the result back to the file")
	fmtCmd.Flags().Bool("check", false, "list files whose formatting differs and exit with status 1")
}

func runFmt(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	write, err := cmd.Flags().GetBool("write")
	if err != nil {
		return fmt.Errorf("failed to get write flag: %w", err)
	}
	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return fmt.Errorf("failed to get check flag: %w", err)
	}

	out := cmd.OutOrStdout()
	fs := source.NewFileSet()
	failed := false
	for _, path := range args {
		id, err := fs.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		file := fs.Get(id)
		bag := diag.NewBag(s.maxDiagnostics)
		logs := oplog.Parse(file, diag.BagReporter{Bag: bag})
		if bag.HasErrors() {
			bag.Sort()
			diagfmt.Pretty(cmd.ErrOrStderr(), bag, fs, diagfmt.PrettyOpts{Color: s.color, ShowNotes: true})
			failed = true
			continue
		}

		formatted := []byte(oplog.FormatString(logs))
		changed := !bytes.Equal(formatted, file.Content)
		switch {
		case check:
			if changed {
				fmt.Fprintln(out, file.Path)
				failed = true
			}
		case write:
			if changed {
				if err := os.WriteFile(path, formatted, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				s.log.Info("formatted", "file", file.Path)
			}
		default:
			if _, err := out.Write(formatted); err != nil {
				return err
			}
		}
	}
	if failed {
		return errViolations
	}
	return nil
}
