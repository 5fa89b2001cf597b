package borrow

import (
	"fmt"

	"fortio.org/safecast"

	"borrowck/internal/oplog"
)

// BorrowID identifies a borrow entry.
type BorrowID uint32

// NoBorrowID marks the absence of a borrow.
const NoBorrowID BorrowID = 0

// RetireReason says why a borrow stopped being alive.
type RetireReason uint8

const (
	RetireNone RetireReason = iota
	// RetireConflict: the borrow had been used and a conflicting operation
	// arrived, so its last use lay before it.
	RetireConflict
	// RetireScopeExit: an anonymous borrow reached the end of its scope.
	RetireScopeExit
	// RetireHolderDropped: the reference binding went out of scope.
	RetireHolderDropped
	// RetireReassigned: the holder was assigned another value.
	RetireReassigned
	// RetireTargetDropped: the borrowed binding went out of scope.
	RetireTargetDropped
	// RetireEndOfLog: the log ended with the borrow still alive.
	RetireEndOfLog
)

func (r RetireReason) String() string {
	switch r {
	case RetireConflict:
		return "conflict"
	case RetireScopeExit:
		return "scope exit"
	case RetireHolderDropped:
		return "holder dropped"
	case RetireReassigned:
		return "holder reassigned"
	case RetireTargetDropped:
		return "target dropped"
	case RetireEndOfLog:
		return "end of log"
	default:
		return "alive"
	}
}

// BorrowInfo stores metadata about each borrow.
type BorrowInfo struct {
	ID     BorrowID
	Kind   oplog.BorrowKind
	Target BindingID
	// Holder is the reference binding storing the borrow, NoBindingID for
	// anonymous borrows.
	Holder     BindingID
	Depth      int
	Introduced int
	// LastUse is the index of the latest Use touching the borrow, NoIndex
	// until Used is set.
	LastUse   int
	Used      bool
	Retired   bool
	RetiredAt int
	Reason    RetireReason
	// RetiredBy is the operation kind that retired a RetireConflict borrow.
	RetiredBy oplog.Kind
}

// Alive reports whether the borrow still holds its target.
func (bi *BorrowInfo) Alive() bool {
	return bi != nil && bi.ID != NoBorrowID && !bi.Retired
}

type borrowState struct {
	shared []BorrowID
	excl   BorrowID
}

func (s borrowState) empty() bool {
	return len(s.shared) == 0 && s.excl == NoBorrowID
}

// IssueKind enumerates reasons a borrow-related action fails.
type IssueKind uint8

const (
	IssueNone IssueKind = iota
	// IssueConflictShared: a shared borrow is alive.
	IssueConflictShared
	// IssueConflictExclusive: an exclusive borrow is alive.
	IssueConflictExclusive
	// IssueFrozen: the binding is shared-borrowed and cannot change.
	IssueFrozen
	// IssueTaken: the binding is exclusively borrowed.
	IssueTaken
)

// Issue carries information about conflicts.
type Issue struct {
	Kind   IssueKind
	Borrow BorrowID
}

// OK reports whether no conflict was found.
func (i Issue) OK() bool { return i.Kind == IssueNone }

// BorrowTable tracks alive borrows per binding.
type BorrowTable struct {
	infos []BorrowInfo
	state map[BindingID]borrowState
}

// NewBorrowTable builds an empty borrow table ready for tracking.
func NewBorrowTable() *BorrowTable {
	return &BorrowTable{
		infos: []BorrowInfo{{}},
		state: make(map[BindingID]borrowState),
	}
}

// Check verifies that a borrow of kind could be taken on target without
// registering it.
func (bt *BorrowTable) Check(kind oplog.BorrowKind, target BindingID) Issue {
	if bt == nil {
		return Issue{}
	}
	state := bt.state[target]
	switch kind {
	case oplog.Shared:
		if state.excl != NoBorrowID {
			return Issue{Kind: IssueConflictExclusive, Borrow: state.excl}
		}
	case oplog.Exclusive:
		if len(state.shared) > 0 {
			return Issue{Kind: IssueConflictShared, Borrow: state.shared[0]}
		}
		if state.excl != NoBorrowID {
			return Issue{Kind: IssueConflictExclusive, Borrow: state.excl}
		}
	}
	return Issue{}
}

// Begin registers a borrow of target introduced by the operation at index.
func (bt *BorrowTable) Begin(kind oplog.BorrowKind, target, holder BindingID, depth, index int) (BorrowID, Issue) {
	if issue := bt.Check(kind, target); !issue.OK() {
		return NoBorrowID, issue
	}
	value, err := safecast.Conv[uint32](len(bt.infos))
	if err != nil {
		panic(fmt.Errorf("borrow table overflow: %w", err))
	}
	id := BorrowID(value)
	bt.infos = append(bt.infos, BorrowInfo{
		ID:         id,
		Kind:       kind,
		Target:     target,
		Holder:     holder,
		Depth:      depth,
		Introduced: index,
		LastUse:    NoIndex,
	})
	state := bt.state[target]
	switch kind {
	case oplog.Shared:
		state.shared = append(state.shared, id)
	case oplog.Exclusive:
		state.excl = id
	}
	bt.state[target] = state
	return id, Issue{}
}

// MutationAllowed verifies whether target can be written.
func (bt *BorrowTable) MutationAllowed(target BindingID) Issue {
	if bt == nil {
		return Issue{}
	}
	state, ok := bt.state[target]
	if !ok {
		return Issue{}
	}
	if len(state.shared) > 0 {
		return Issue{Kind: IssueFrozen, Borrow: state.shared[0]}
	}
	if state.excl != NoBorrowID {
		return Issue{Kind: IssueTaken, Borrow: state.excl}
	}
	return Issue{}
}

// MoveAllowed verifies whether target can be moved from. A copy only reads
// the value, so only an exclusive borrow blocks it.
func (bt *BorrowTable) MoveAllowed(target BindingID, copyable bool) Issue {
	if !copyable {
		return bt.MutationAllowed(target)
	}
	if bt == nil {
		return Issue{}
	}
	if excl := bt.state[target].excl; excl != NoBorrowID {
		return Issue{Kind: IssueTaken, Borrow: excl}
	}
	return Issue{}
}

// Retire ends a borrow. Retiring twice is a no-op.
func (bt *BorrowTable) Retire(id BorrowID, index int, reason RetireReason, by oplog.Kind) bool {
	info := bt.Info(id)
	if !info.Alive() {
		return false
	}
	info.Retired = true
	info.RetiredAt = index
	info.Reason = reason
	if reason == RetireConflict {
		info.RetiredBy = by
	}
	state := bt.state[info.Target]
	switch info.Kind {
	case oplog.Shared:
		state.shared = removeBorrowID(state.shared, id)
	case oplog.Exclusive:
		if state.excl == id {
			state.excl = NoBorrowID
		}
	}
	if state.empty() {
		delete(bt.state, info.Target)
	} else {
		bt.state[info.Target] = state
	}
	return true
}

// RetireUsed retires the used borrows of target that a conflicting operation
// of kind by makes expire. With exclusiveOnly only the exclusive borrow is
// considered. It returns the retired IDs in table order.
func (bt *BorrowTable) RetireUsed(target BindingID, index int, by oplog.Kind, exclusiveOnly bool) []BorrowID {
	var retired []BorrowID
	for _, id := range bt.Alive(target) {
		info := bt.Info(id)
		if !info.Used {
			continue
		}
		if exclusiveOnly && info.Kind != oplog.Exclusive {
			continue
		}
		if bt.Retire(id, index, RetireConflict, by) {
			retired = append(retired, id)
		}
	}
	return retired
}

// MarkUsed records a use of the borrow at index.
func (bt *BorrowTable) MarkUsed(id BorrowID, index int) {
	info := bt.Info(id)
	if !info.Alive() {
		return
	}
	info.Used = true
	info.LastUse = index
}

// Alive returns the alive borrows of target, exclusive first, then shared
// in introduction order.
func (bt *BorrowTable) Alive(target BindingID) []BorrowID {
	if bt == nil {
		return nil
	}
	state, ok := bt.state[target]
	if !ok {
		return nil
	}
	out := make([]BorrowID, 0, len(state.shared)+1)
	if state.excl != NoBorrowID {
		out = append(out, state.excl)
	}
	out = append(out, state.shared...)
	return out
}

// SharedCount returns the number of alive shared borrows of target.
func (bt *BorrowTable) SharedCount(target BindingID) int {
	if bt == nil {
		return 0
	}
	return len(bt.state[target].shared)
}

// Exclusive returns the alive exclusive borrow of target, if any.
func (bt *BorrowTable) Exclusive(target BindingID) BorrowID {
	if bt == nil {
		return NoBorrowID
	}
	return bt.state[target].excl
}

// Info returns the metadata of id or nil.
func (bt *BorrowTable) Info(id BorrowID) *BorrowInfo {
	if bt == nil || id == NoBorrowID || int(id) >= len(bt.infos) {
		return nil
	}
	return &bt.infos[id]
}

// Infos returns a copy of every borrow ever registered.
func (bt *BorrowTable) Infos() []BorrowInfo {
	if bt == nil || len(bt.infos) <= 1 {
		return nil
	}
	out := make([]BorrowInfo, len(bt.infos)-1)
	copy(out, bt.infos[1:])
	return out
}

func removeBorrowID(ids []BorrowID, id BorrowID) []BorrowID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
