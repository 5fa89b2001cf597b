package borrow

import (
	"fmt"

	"borrowck/internal/oplog"
)

// EventKind identifies the type of event recorded while checking.
type EventKind uint8

const (
	EvDeclare EventKind = iota
	EvUse
	EvMove
	EvWrite
	// EvBorrowStart indicates the beginning of a borrow.
	EvBorrowStart
	// EvBorrowEnd indicates the end of a borrow.
	EvBorrowEnd
	EvDrop
	EvScopeEnter
	EvScopeExit
	EvReturn
	// EvSkip marks an operation skipped in batch mode.
	EvSkip
	EvViolation
)

func (k EventKind) String() string {
	switch k {
	case EvDeclare:
		return "declare"
	case EvUse:
		return "use"
	case EvMove:
		return "move"
	case EvWrite:
		return "write"
	case EvBorrowStart:
		return "borrow_start"
	case EvBorrowEnd:
		return "borrow_end"
	case EvDrop:
		return "drop"
	case EvScopeEnter:
		return "scope_enter"
	case EvScopeExit:
		return "scope_exit"
	case EvReturn:
		return "return"
	case EvSkip:
		return "skip"
	case EvViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// Event is a lightweight log entry produced while checking. It is meant for
// debugging and visualization and never affects violations.
type Event struct {
	Kind  EventKind
	Index int
	Depth int

	Binding BindingID
	Name    string

	// Borrow and BorrowKind are set for borrow events.
	Borrow     BorrowID
	BorrowKind oplog.BorrowKind

	Issue ViolationKind
	Note  string
}

func (e Event) String() string {
	s := fmt.Sprintf("#%d %s", e.Index, e.Kind)
	if e.Name != "" {
		s += " " + e.Name
	}
	if e.Borrow != NoBorrowID {
		s += fmt.Sprintf(" b%d(%s)", e.Borrow, e.BorrowKind)
	}
	if e.Issue != NoViolation {
		s += " " + e.Issue.String()
	}
	if e.Note != "" {
		s += ": " + e.Note
	}
	return s
}
