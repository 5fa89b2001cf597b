package oplog

import (
	"strings"

	"borrowck/internal/source"
)

// Kind enumerates the operations a log may contain.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindDeclare
	KindMove
	KindBorrow
	KindUse
	KindEnterScope
	KindExitScope
	KindAssign
	KindReturn
)

func (k Kind) String() string {
	switch k {
	case KindDeclare:
		return "declare"
	case KindMove:
		return "move"
	case KindBorrow:
		return "borrow"
	case KindUse:
		return "use"
	case KindEnterScope:
		return "enter"
	case KindExitScope:
		return "exit"
	case KindAssign:
		return "assign"
	case KindReturn:
		return "return"
	default:
		return "invalid"
	}
}

// BorrowKind differentiates shared vs exclusive borrows.
type BorrowKind uint8

const (
	Shared BorrowKind = iota
	Exclusive
)

func (k BorrowKind) String() string {
	if k == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// HolderMode says where a borrow is stored.
type HolderMode uint8

const (
	// HolderNone is an anonymous borrow (a temporary).
	HolderNone HolderMode = iota
	// HolderNew introduces a new reference binding: let r = &x.
	HolderNew
	// HolderExisting stores into a binding already in scope: r = &x.
	HolderExisting
)

// Op is one entry of an operation log.
type Op struct {
	Kind Kind
	// Name is the subject binding; for Move it is the source.
	Name string
	// Target is the Move destination or the borrow holder.
	Target  string
	Mutable bool // Declare, Move destination
	Copy    bool // Declare
	Borrow  BorrowKind
	Holder  HolderMode
	Span    source.Span
}

func Declare(name string, mutable bool) Op {
	return Op{Kind: KindDeclare, Name: name, Mutable: mutable}
}

// DeclareCopy declares a binding of a copyable type.
func DeclareCopy(name string, mutable bool) Op {
	return Op{Kind: KindDeclare, Name: name, Mutable: mutable, Copy: true}
}

func Move(from, to string) Op {
	return Op{Kind: KindMove, Name: from, Target: to}
}

// MoveMut moves into a mutable destination: let mut to = from.
func MoveMut(from, to string) Op {
	return Op{Kind: KindMove, Name: from, Target: to, Mutable: true}
}

func Borrow(name string, kind BorrowKind) Op {
	return Op{Kind: KindBorrow, Name: name, Borrow: kind}
}

// BorrowAs borrows name into a new reference binding holder.
func BorrowAs(name string, kind BorrowKind, holder string) Op {
	return Op{Kind: KindBorrow, Name: name, Borrow: kind, Target: holder, Holder: HolderNew}
}

// BorrowInto stores the borrow into an existing binding holder.
func BorrowInto(name string, kind BorrowKind, holder string) Op {
	return Op{Kind: KindBorrow, Name: name, Borrow: kind, Target: holder, Holder: HolderExisting}
}

func Use(name string) Op    { return Op{Kind: KindUse, Name: name} }
func Assign(name string) Op { return Op{Kind: KindAssign, Name: name} }
func Return(name string) Op { return Op{Kind: KindReturn, Name: name} }
func EnterScope() Op        { return Op{Kind: KindEnterScope} }
func ExitScope() Op         { return Op{Kind: KindExitScope} }

// Names returns every binding name the operation refers to.
func (op Op) Names() []string {
	switch {
	case op.Name == "":
		return nil
	case op.Target == "":
		return []string{op.Name}
	default:
		return []string{op.Name, op.Target}
	}
}

// String renders op in canonical log syntax.
func (op Op) String() string {
	var sb strings.Builder
	switch op.Kind {
	case KindDeclare:
		sb.WriteString("declare ")
		if op.Mutable {
			sb.WriteString("mut ")
		}
		if op.Copy {
			sb.WriteString("copy ")
		}
		sb.WriteString(op.Name)
	case KindMove:
		sb.WriteString("move ")
		sb.WriteString(op.Name)
		sb.WriteString(" -> ")
		if op.Mutable {
			sb.WriteString("mut ")
		}
		sb.WriteString(op.Target)
	case KindBorrow:
		sb.WriteString("borrow ")
		if op.Borrow == Exclusive {
			sb.WriteString("mut ")
		}
		sb.WriteString(op.Name)
		switch op.Holder {
		case HolderNew:
			sb.WriteString(" as ")
			sb.WriteString(op.Target)
		case HolderExisting:
			sb.WriteString(" into ")
			sb.WriteString(op.Target)
		}
	case KindUse, KindAssign, KindReturn:
		sb.WriteString(op.Kind.String())
		sb.WriteByte(' ')
		sb.WriteString(op.Name)
	case KindEnterScope:
		sb.WriteByte('{')
	case KindExitScope:
		sb.WriteByte('}')
	default:
		sb.WriteString("<invalid>")
	}
	return sb.String()
}

// DefaultLogName names operations that appear before any "log" header.
const DefaultLogName = "main"

// Log is one independent operation sequence, e.g. one function body.
type Log struct {
	Name string
	Ops  []Op
	// Span covers the "log" header; empty for the implicit default log.
	Span source.Span
	// Broken is set when the parser reported errors inside the log.
	Broken bool
}
