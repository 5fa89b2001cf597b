package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"borrowck/internal/borrow"
	"borrowck/internal/diag"
	"borrowck/internal/diagfmt"
	"borrowck/internal/oplog"
	"borrowck/internal/source"
)

var explainCmd = &cobra.Command{
	Use:   "explain [flags] <file>",
	Short: "Show how each operation changes ownership state",
	Long: `Replay every log of a file and print, per operation, the ownership events
it caused, followed by the final state of each binding`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	explainCmd.Flags().String("log", "", "only explain the log with this name")
	explainCmd.Flags().String("mode", "batch", "checking mode (first|batch)")
	explainCmd.Flags().Bool("strict-mutability", false, "reject exclusive borrows of immutable bindings")
}

type explainedLog struct {
	Log    oplog.Log
	Result *borrow.Result
}

func runExplain(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	only, err := cmd.Flags().GetString("log")
	if err != nil {
		return fmt.Errorf("failed to get log flag: %w", err)
	}
	modeStr, err := cmd.Flags().GetString("mode")
	if err != nil {
		return fmt.Errorf("failed to get mode flag: %w", err)
	}
	strict, err := cmd.Flags().GetBool("strict-mutability")
	if err != nil {
		return fmt.Errorf("failed to get strict-mutability flag: %w", err)
	}
	mode, err := borrow.ParseMode(modeStr)
	if err != nil {
		return err
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	fs := source.NewFileSet()
	id, err := fs.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}
	bag := diag.NewBag(s.maxDiagnostics)
	logs := oplog.Parse(fs.Get(id), diag.BagReporter{Bag: bag})
	if bag.HasErrors() {
		bag.Sort()
		diagfmt.Pretty(cmd.ErrOrStderr(), bag, fs, diagfmt.PrettyOpts{Color: s.color, ShowNotes: true})
		return errViolations
	}

	opts := borrow.Options{Mode: mode, StrictMutability: strict, Events: true}
	var explained []explainedLog
	for _, lg := range logs {
		if only != "" && lg.Name != only {
			continue
		}
		explained = append(explained, explainedLog{Log: lg, Result: borrow.Check(lg.Ops, opts)})
	}
	if only != "" && len(explained) == 0 {
		return fmt.Errorf("no log named %q in %s", only, args[0])
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return renderExplainJSON(out, explained)
	}
	for i, e := range explained {
		if i > 0 {
			fmt.Fprintln(out)
		}
		renderExplainPretty(out, e)
	}
	return nil
}

func renderExplainPretty(out io.Writer, e explainedLog) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	bold.Fprintf(out, "log %s\n", e.Log.Name)

	byIndex := make(map[int][]borrow.Event)
	for _, ev := range e.Result.Events {
		byIndex[ev.Index] = append(byIndex[ev.Index], ev)
	}
	for i, op := range e.Log.Ops {
		fmt.Fprintf(out, "%4d  %s\n", i, op)
		for _, ev := range byIndex[i] {
			fmt.Fprintf(out, "        %s\n", eventColor(ev.Kind).Sprint(describeEvent(ev)))
		}
	}
	if tail := byIndex[len(e.Log.Ops)]; len(tail) > 0 {
		fmt.Fprintf(out, "%4s  %s\n", "", dim.Sprint("end of log"))
		for _, ev := range tail {
			fmt.Fprintf(out, "        %s\n", eventColor(ev.Kind).Sprint(describeEvent(ev)))
		}
	}

	if len(e.Result.Bindings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, bindingTable(e.Result.Bindings))
	}

	fmt.Fprintln(out)
	if e.Result.Valid() {
		fmt.Fprintln(out, color.GreenString("Valid"))
		return
	}
	for _, v := range e.Result.Violations {
		fmt.Fprintf(out, "%s %s\n", color.RedString(v.String()), v.Message)
	}
	if n := len(e.Result.Skipped); n > 0 {
		fmt.Fprintf(out, "%s\n", dim.Sprintf("%d operation(s) skipped", n))
	}
}

func describeEvent(ev borrow.Event) string {
	s := ev.Kind.String()
	if ev.Name != "" {
		s += " " + ev.Name
	}
	if ev.Borrow != borrow.NoBorrowID {
		s += fmt.Sprintf(" b%d(%s)", ev.Borrow, ev.BorrowKind)
	}
	if ev.Note != "" {
		s += ": " + ev.Note
	}
	return s
}

func eventColor(kind borrow.EventKind) *color.Color {
	switch kind {
	case borrow.EvViolation:
		return color.New(color.FgRed, color.Bold)
	case borrow.EvSkip:
		return color.New(color.Faint)
	case borrow.EvBorrowStart, borrow.EvBorrowEnd:
		return color.New(color.FgCyan)
	case borrow.EvMove, borrow.EvReturn, borrow.EvDrop:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

func bindingTable(bindings []borrow.Binding) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 { // заголовок
				return header
			}
			return cell
		}).
		Headers("binding", "depth", "flags", "state")
	for _, b := range bindings {
		t.Row(b.Name, strconv.Itoa(b.Depth), bindingFlags(b), b.State.String())
	}
	return t.Render()
}

func bindingFlags(b borrow.Binding) string {
	var flags []string
	if b.Mutable {
		flags = append(flags, "mut")
	}
	if b.Copy {
		flags = append(flags, "copy")
	}
	if b.Holds != borrow.NoBorrowID {
		flags = append(flags, fmt.Sprintf("ref b%d", b.Holds))
	}
	if b.Poisoned {
		flags = append(flags, "poisoned")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

type explainJSON struct {
	Log        string          `json:"log"`
	Valid      bool            `json:"valid"`
	Checked    int             `json:"checked"`
	Events     []string        `json:"events"`
	Bindings   []bindingJSON   `json:"bindings"`
	Violations []violationJSON `json:"violations,omitempty"`
	Skipped    []int           `json:"skipped,omitempty"`
}

type bindingJSON struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
	Mutable  bool   `json:"mutable"`
	Copy     bool   `json:"copy,omitempty"`
	State    string `json:"state"`
	Poisoned bool   `json:"poisoned,omitempty"`
}

type violationJSON struct {
	Kind    string `json:"kind"`
	Index   int    `json:"index"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Related int    `json:"related"`
}

func renderExplainJSON(out io.Writer, explained []explainedLog) error {
	payload := make([]explainJSON, 0, len(explained))
	for _, e := range explained {
		res := e.Result
		item := explainJSON{
			Log:      e.Log.Name,
			Valid:    res.Valid(),
			Checked:  res.Checked,
			Events:   make([]string, len(res.Events)),
			Bindings: make([]bindingJSON, len(res.Bindings)),
			Skipped:  res.Skipped,
		}
		for i, ev := range res.Events {
			item.Events[i] = ev.String()
		}
		for i, b := range res.Bindings {
			item.Bindings[i] = bindingJSON{
				Name:     b.Name,
				Depth:    b.Depth,
				Mutable:  b.Mutable,
				Copy:     b.Copy,
				State:    b.State.String(),
				Poisoned: b.Poisoned,
			}
		}
		for _, v := range res.Violations {
			item.Violations = append(item.Violations, violationJSON{
				Kind:    v.Kind.String(),
				Index:   v.Index,
				Name:    v.Name,
				Message: v.Message,
				Related: v.Related,
			})
		}
		payload = append(payload, item)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
