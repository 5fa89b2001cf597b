package oplog

import (
	"bytes"
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"borrowck/internal/diag"
	"borrowck/internal/source"
)

var keywords = map[string]struct{}{
	"mut": {}, "copy": {}, "as": {}, "into": {}, "shared": {}, "exclusive": {},
}

type parser struct {
	file     source.FileID
	reporter diag.Reporter
	logs     []Log
	seen     map[string]source.Span
	cur      *Log
}

// Parse splits file content into logs. Syntax errors are reported through r
// and mark the enclosing log as Broken; parsing always continues with the next
// line.
func Parse(file *source.File, r diag.Reporter) []Log {
	if r == nil {
		r = diag.NopReporter{}
	}
	p := &parser{
		file:     file.ID,
		reporter: r,
		seen:     make(map[string]source.Span),
	}
	p.run(file.Content)
	return p.logs
}

// ParseString parses in-memory content; handy for tests and stdin.
func ParseString(name, content string, r diag.Reporter) ([]Log, *source.FileSet) {
	fs := source.NewFileSet()
	id := fs.AddVirtual(name, []byte(content))
	return Parse(fs.Get(id), r), fs
}

func (p *parser) run(content []byte) {
	var base uint32
	for len(content) > 0 {
		line := content
		next := len(content)
		if nl := bytes.IndexByte(content, '\n'); nl >= 0 {
			line = content[:nl]
			next = nl + 1
		}
		p.parseLine(splitLine(line, base))
		base = advance(base, next)
		content = content[next:]
	}
	p.finishLog()
}

// advance moves a line offset past n bytes; content beyond 4 GiB is a
// programmer error, as for token offsets.
func advance(base uint32, n int) uint32 {
	step, err := safecast.Conv[uint32](n)
	if err != nil || base > math.MaxUint32-step {
		panic(fmt.Errorf("source offset overflow at %d+%d", base, n))
	}
	return base + step
}

func (p *parser) span(from, to token) source.Span {
	return source.Span{File: p.file, Start: from.start, End: to.end}
}

func (p *parser) errorf(code diag.Code, tok token, format string, args ...any) {
	diag.ReportError(p.reporter, code, p.span(tok, tok), fmt.Sprintf(format, args...)).Emit()
	if p.cur != nil {
		p.cur.Broken = true
	}
}

func (p *parser) current() *Log {
	if p.cur == nil {
		p.cur = &Log{Name: DefaultLogName}
	}
	return p.cur
}

func (p *parser) finishLog() {
	if p.cur == nil {
		return
	}
	if len(p.cur.Ops) == 0 && !p.cur.Span.Empty() {
		diag.ReportWarning(p.reporter, diag.SynEmptyLog, p.cur.Span,
			fmt.Sprintf("log '%s' has no operations", p.cur.Name)).Emit()
	}
	p.logs = append(p.logs, *p.cur)
	p.cur = nil
}

func (p *parser) parseLine(toks []token) {
	if len(toks) == 0 {
		return
	}
	head := toks[0]
	if head.text == "log" {
		p.parseHeader(toks)
		return
	}
	p.current()

	var (
		op   Op
		rest []token
		ok   bool
	)
	switch head.text {
	case "declare", "let":
		op, rest, ok = p.parseDeclare(head, toks[1:])
	case "move":
		op, rest, ok = p.parseMove(head, toks[1:])
	case "borrow":
		op, rest, ok = p.parseBorrow(head, toks[1:])
	case "use", "assign", "return":
		var name string
		name, rest, ok = p.expectName(head, toks[1:])
		op = Op{Kind: kindForWord(head.text), Name: name}
	case "{", "enter":
		op, rest, ok = EnterScope(), toks[1:], true
	case "}", "exit":
		op, rest, ok = ExitScope(), toks[1:], true
	default:
		p.errorf(diag.SynUnknownOp, head, "unknown operation '%s'", head.text)
		return
	}
	if !ok {
		return
	}
	last := head
	consumed := len(toks) - len(rest)
	if consumed > 0 {
		last = toks[consumed-1]
	}
	op.Span = p.span(head, last)
	p.cur.Ops = append(p.cur.Ops, op)

	// "{ use s }" style lines: keep parsing the remainder as its own line.
	if len(rest) > 0 {
		if op.Kind == KindEnterScope || op.Kind == KindExitScope || rest[0].text == "{" || rest[0].text == "}" {
			p.parseLine(rest)
			return
		}
		p.errorf(diag.SynUnexpectedToken, rest[0], "unexpected '%s' after %s", rest[0].text, op.Kind)
	}
}

func kindForWord(word string) Kind {
	switch word {
	case "use":
		return KindUse
	case "assign":
		return KindAssign
	case "return":
		return KindReturn
	}
	return KindInvalid
}

func (p *parser) parseHeader(toks []token) {
	p.finishLog()
	name, rest, ok := p.expectName(toks[0], toks[1:])
	if !ok {
		p.cur = &Log{Name: DefaultLogName, Span: p.span(toks[0], toks[0]), Broken: true}
		return
	}
	span := p.span(toks[0], toks[1])
	p.cur = &Log{Name: name, Span: span}
	if prev, dup := p.seen[name]; dup {
		diag.ReportError(p.reporter, diag.SynDuplicateLog, span, fmt.Sprintf("log '%s' is declared twice", name)).
			WithNote(prev, "first declared here").
			Emit()
		p.cur.Broken = true
	}
	p.seen[name] = span
	if len(rest) > 0 {
		p.errorf(diag.SynUnexpectedToken, rest[0], "unexpected '%s' after log name", rest[0].text)
	}
}

func (p *parser) parseDeclare(head token, toks []token) (Op, []token, bool) {
	op := Op{Kind: KindDeclare}
	prev := head
	for len(toks) > 0 {
		switch toks[0].text {
		case "mut":
			op.Mutable = true
		case "copy":
			op.Copy = true
		default:
			name, rest, ok := p.expectName(prev, toks)
			op.Name = name
			return op, rest, ok
		}
		prev = toks[0]
		toks = toks[1:]
	}
	_, _, ok := p.expectName(prev, nil)
	return op, nil, ok
}

func (p *parser) parseMove(head token, toks []token) (Op, []token, bool) {
	op := Op{Kind: KindMove}
	from, rest, ok := p.expectName(head, toks)
	if !ok {
		return op, nil, false
	}
	op.Name = from
	prev := toks[0]
	if len(rest) > 0 && rest[0].text == "->" {
		prev = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0].text == "mut" {
		op.Mutable = true
		prev = rest[0]
		rest = rest[1:]
	}
	to, rest, ok := p.expectName(prev, rest)
	op.Target = to
	return op, rest, ok
}

func (p *parser) parseBorrow(head token, toks []token) (Op, []token, bool) {
	op := Op{Kind: KindBorrow, Borrow: Shared}
	prev := head
	if len(toks) > 0 {
		switch toks[0].text {
		case "mut", "exclusive":
			op.Borrow = Exclusive
			prev = toks[0]
			toks = toks[1:]
		case "shared":
			prev = toks[0]
			toks = toks[1:]
		}
	}
	name, rest, ok := p.expectName(prev, toks)
	if !ok {
		return op, nil, false
	}
	op.Name = name
	if len(rest) == 0 || (rest[0].text != "as" && rest[0].text != "into") {
		return op, rest, true
	}
	kw := rest[0]
	op.Holder = HolderNew
	if kw.text == "into" {
		op.Holder = HolderExisting
	}
	holder, rest, ok := p.expectName(kw, rest[1:])
	op.Target = holder
	return op, rest, ok
}

// expectName consumes a binding name from toks. after is the token preceding
// the name and anchors the diagnostic when the line ends early.
func (p *parser) expectName(after token, toks []token) (string, []token, bool) {
	if len(toks) == 0 {
		p.errorf(diag.SynExpectName, after, "expected binding name after '%s'", after.text)
		return "", nil, false
	}
	tok := toks[0]
	name := norm.NFC.String(tok.text)
	if !validName(name) {
		p.errorf(diag.SynInvalidName, tok, "'%s' is not a valid binding name", tok.text)
		return "", nil, false
	}
	return name, toks[1:], true
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	if _, kw := keywords[name]; kw {
		return false
	}
	for i, r := range name {
		if r == utf8.RuneError {
			return false
		}
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
