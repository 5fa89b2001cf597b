package borrow

import "fmt"

// BindingID identifies a binding. Shadowed names get distinct IDs.
type BindingID uint32

// NoBindingID marks the absence of a binding.
const NoBindingID BindingID = 0

// StateKind is the coarse ownership state of a binding.
type StateKind uint8

const (
	StateOwned StateKind = iota
	StateMoved
	StateBorrowedShared
	StateBorrowedExclusive
	StateDropped
)

// BindingState is the observable state of a binding. Shared carries the
// number of alive shared borrows for StateBorrowedShared.
type BindingState struct {
	Kind   StateKind
	Shared int
}

func (s BindingState) String() string {
	switch s.Kind {
	case StateOwned:
		return "owned"
	case StateMoved:
		return "moved"
	case StateBorrowedShared:
		return fmt.Sprintf("borrowed(shared, %d)", s.Shared)
	case StateBorrowedExclusive:
		return "borrowed(exclusive)"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Binding is a named slot declared in a scope.
type Binding struct {
	ID       BindingID
	Name     string
	Depth    int
	Mutable  bool
	Copy     bool
	Declared int
	// Moved is set by Move/Return and cleared by Assign.
	Moved   bool
	MovedAt int
	Dropped bool
	// Holds is the borrow stored in this binding, if it is a reference.
	Holds BorrowID
	// Poisoned bindings were involved in a violation (batch mode).
	Poisoned bool
	// State is filled in snapshots returned by Result.
	State BindingState
}
