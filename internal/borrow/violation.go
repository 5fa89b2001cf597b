package borrow

import (
	"fmt"

	"borrowck/internal/source"
)

// ViolationKind names the ownership rule an operation broke.
type ViolationKind uint8

const (
	NoViolation ViolationKind = iota
	UseAfterMove
	ExclusiveConflict
	ImmutableAssignment
	BorrowActiveDuringMove
	BorrowActiveDuringAssign
	DanglingReferenceRisk
	UndeclaredBinding
	UnbalancedScope
	// ImmutableBorrow is only reported with Options.StrictMutability.
	ImmutableBorrow
)

func (k ViolationKind) String() string {
	switch k {
	case NoViolation:
		return "None"
	case UseAfterMove:
		return "UseAfterMove"
	case ExclusiveConflict:
		return "ExclusiveConflict"
	case ImmutableAssignment:
		return "ImmutableAssignment"
	case BorrowActiveDuringMove:
		return "BorrowActiveDuringMove"
	case BorrowActiveDuringAssign:
		return "BorrowActiveDuringAssign"
	case DanglingReferenceRisk:
		return "DanglingReferenceRisk"
	case UndeclaredBinding:
		return "UndeclaredBinding"
	case UnbalancedScope:
		return "UnbalancedScope"
	case ImmutableBorrow:
		return "ImmutableBorrow"
	default:
		return "Unknown"
	}
}

// NoIndex marks the absence of a related operation.
const NoIndex = -1

// Violation is one rejected operation.
type Violation struct {
	Kind ViolationKind
	// Index is the 0-based position of the offending operation. Scopes left
	// open are reported at len(ops).
	Index int
	// Name is the binding the rule is about.
	Name    string
	Message string
	// Related points at the earlier operation that caused the conflict
	// (previous borrow, the move, the declaration) or NoIndex.
	Related     int
	Span        source.Span
	RelatedSpan source.Span
}

// String renders the compact form "Violation(Kind, index)".
func (v Violation) String() string {
	return fmt.Sprintf("Violation(%s, %d)", v.Kind, v.Index)
}

func (v Violation) Error() string {
	return fmt.Sprintf("op %d: %s", v.Index, v.Message)
}
