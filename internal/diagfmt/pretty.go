package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"borrowck/internal/diag"
	"borrowck/internal/source"
)

type palette struct {
	err, warn, info *color.Color
	code, path      *color.Color
	gutter, caret   *color.Color
	note            *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		info:   color.New(color.FgCyan, color.Bold),
		code:   color.New(color.Bold),
		path:   color.New(color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgRed, color.Bold),
		note:   color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.path, p.gutter, p.caret, p.note} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем контекст строки с подчёркиванием ^~~~ по Span, затем Notes с аналогичным форматом.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		loc := location(fs, d.Primary, opts.PathMode)
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			p.path.Sprint(loc),
			p.severity(d.Severity).Sprint(d.Severity.String()),
			p.code.Sprint(d.Code.ID()),
			d.Message,
		)
		snippet(w, fs, d.Primary, int(opts.Context), p, p.caret)
		if !opts.ShowNotes {
			continue
		}
		for _, note := range d.Notes {
			fmt.Fprintf(w, "%s %s: %s\n", p.note.Sprint("note:"), location(fs, note.Span, opts.PathMode), note.Msg)
			snippet(w, fs, note.Span, 0, p, p.note)
		}
	}
}

// Short prints one line per diagnostic: <path>:<line>:<col>: <sev> <CODE>: <Message>.
func Short(w io.Writer, bag *diag.Bag, fs *source.FileSet, mode PathMode) {
	for _, d := range bag.Items() {
		fmt.Fprintf(w, "%s: %s %s: %s\n", location(fs, d.Primary, mode), d.Severity.Label(), d.Code.ID(), d.Message)
	}
}

func location(fs *source.FileSet, span source.Span, mode PathMode) string {
	f := fs.Get(span.File)
	if f == nil {
		return "<unknown>"
	}
	start, _ := fs.Resolve(span)
	path := formatPath(mode, f.FormatPath, fs.BaseDir())
	return fmt.Sprintf("%s:%d:%d", path, start.Line, start.Col)
}

func snippet(w io.Writer, fs *source.FileSet, span source.Span, context int, p palette, caret *color.Color) {
	f := fs.Get(span.File)
	if f == nil || len(f.Content) == 0 {
		return
	}
	start, end := fs.Resolve(span)
	first := max(int(start.Line)-context, 1)
	width := len(strconv.Itoa(int(start.Line)))
	pad := strings.Repeat(" ", width)

	for ln := first; ln <= int(start.Line); ln++ {
		line := f.GetLine(uint32(ln))
		fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", width, ln), expandTabs(line))
	}

	line := f.GetLine(start.Line)
	lastCol := uint32(len(line)) + 1
	if end.Line == start.Line && end.Col > start.Col {
		lastCol = min(end.Col, lastCol)
	}
	lead := displayWidth(line, start.Col)
	span0 := max(displayWidth(line, lastCol)-lead, 1)
	marker := "^" + strings.Repeat("~", span0-1)
	fmt.Fprintf(w, "%s %s%s\n", p.gutter.Sprintf("%s |", pad), strings.Repeat(" ", lead), caret.Sprint(marker))
}

// displayWidth measures the terminal columns of line up to 1-based byte
// column col.
func displayWidth(line string, col uint32) int {
	n := min(int(col)-1, len(line))
	if n <= 0 {
		return 0
	}
	return runewidth.StringWidth(expandTabs(line[:n]))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
