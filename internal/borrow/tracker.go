package borrow

import (
	"fmt"

	"fortio.org/safecast"

	"borrowck/internal/oplog"
	"borrowck/internal/source"
)

type frame struct {
	depth    int
	opened   int
	bindings []BindingID
	// anonymous borrows introduced in this scope
	borrows []BorrowID
}

// Tracker checks operations one at a time. The zero value is not usable; use
// NewTracker.
type Tracker struct {
	opts     Options
	bindings []*Binding
	names    map[string][]BindingID
	frames   []frame
	borrows  *BorrowTable

	spans    []source.Span
	index    int
	stopped  bool
	finished bool

	violations []Violation
	skipped    []int
	events     []Event
}

// NewTracker creates a tracker with an open outermost scope.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		opts:     opts,
		bindings: []*Binding{nil},
		names:    make(map[string][]BindingID),
		borrows:  NewBorrowTable(),
	}
	t.frames = append(t.frames, frame{depth: 0, opened: NoIndex})
	return t
}

// Check validates a whole operation log. It is pure: the same input always
// yields the same Result.
func Check(ops []oplog.Op, opts Options) *Result {
	t := NewTracker(opts)
	for _, op := range ops {
		if !t.Step(op) {
			break
		}
	}
	return t.Finish()
}

// Depth returns the current scope depth; the outermost scope is 0.
func (t *Tracker) Depth() int {
	return len(t.frames) - 1
}

// Stopped reports whether the tracker refuses further operations.
func (t *Tracker) Stopped() bool {
	return t.stopped || t.finished
}

// Step applies op and reports whether checking may continue. In ModeFirst it
// returns false after the first violation.
func (t *Tracker) Step(op oplog.Op) bool {
	if t.Stopped() {
		return false
	}
	t.index = len(t.spans)
	t.spans = append(t.spans, op.Span)

	if t.skip(op) {
		t.skipped = append(t.skipped, t.index)
		t.emit(Event{Kind: EvSkip, Name: op.Name, Note: "operand poisoned by an earlier violation"})
		return true
	}

	ok := true
	switch op.Kind {
	case oplog.KindDeclare:
		t.declare(op.Name, op.Mutable, op.Copy)
	case oplog.KindMove:
		ok = t.move(op)
	case oplog.KindBorrow:
		ok = t.borrow(op)
	case oplog.KindUse:
		ok = t.use(op)
	case oplog.KindAssign:
		ok = t.assign(op)
	case oplog.KindReturn:
		ok = t.ret(op)
	case oplog.KindEnterScope:
		t.enterScope()
	case oplog.KindExitScope:
		ok = t.exitScope()
	default:
		panic(fmt.Sprintf("borrow: unexpected op kind %d", op.Kind))
	}
	if !ok && t.opts.Mode == ModeFirst {
		t.stopped = true
		return false
	}
	return true
}

// Finish closes the log and returns the result. Scopes still open produce an
// UnbalancedScope violation unless checking already stopped.
func (t *Tracker) Finish() *Result {
	if !t.finished {
		t.finished = true
		if !t.stopped {
			t.index = len(t.spans)
			if open := t.Depth(); open > 0 {
				t.violate(UnbalancedScope, "", t.frames[len(t.frames)-1].opened,
					"%d scope(s) left open at end of log", open)
			}
			for len(t.frames) > 0 {
				t.closeFrame(RetireEndOfLog)
			}
		}
	}
	return t.result()
}

// State returns the state of the innermost binding named name.
func (t *Tracker) State(name string) (BindingState, bool) {
	b := t.lookup(name)
	if b == nil {
		return BindingState{}, false
	}
	return t.stateOf(b), true
}

func (t *Tracker) stateOf(b *Binding) BindingState {
	switch {
	case b.Dropped:
		return BindingState{Kind: StateDropped}
	case b.Moved:
		return BindingState{Kind: StateMoved}
	case t.borrows.Exclusive(b.ID) != NoBorrowID:
		return BindingState{Kind: StateBorrowedExclusive}
	}
	if n := t.borrows.SharedCount(b.ID); n > 0 {
		return BindingState{Kind: StateBorrowedShared, Shared: n}
	}
	return BindingState{Kind: StateOwned}
}

func (t *Tracker) lookup(name string) *Binding {
	ids := t.names[name]
	if len(ids) == 0 {
		return nil
	}
	return t.binding(ids[len(ids)-1])
}

func (t *Tracker) binding(id BindingID) *Binding {
	if id == NoBindingID || int(id) >= len(t.bindings) {
		return nil
	}
	return t.bindings[id]
}

// skip reports whether op depends on a poisoned binding. Names introduced by
// the operation itself are fresh and never count.
func (t *Tracker) skip(op oplog.Op) bool {
	if t.opts.Mode != ModeBatch {
		return false
	}
	poisoned := func(name string) bool {
		b := t.lookup(name)
		return b != nil && b.Poisoned
	}
	switch op.Kind {
	case oplog.KindDeclare, oplog.KindEnterScope, oplog.KindExitScope:
		return false
	case oplog.KindBorrow:
		if op.Holder == oplog.HolderExisting && poisoned(op.Target) {
			return true
		}
	}
	return poisoned(op.Name)
}

func (t *Tracker) declare(name string, mutable, copyable bool) *Binding {
	value, err := safecast.Conv[uint32](len(t.bindings))
	if err != nil {
		panic(fmt.Errorf("binding table overflow: %w", err))
	}
	id := BindingID(value)
	top := &t.frames[len(t.frames)-1]
	b := &Binding{
		ID:       id,
		Name:     name,
		Depth:    top.depth,
		Mutable:  mutable,
		Copy:     copyable,
		Declared: t.index,
		MovedAt:  NoIndex,
	}
	t.bindings = append(t.bindings, b)
	top.bindings = append(top.bindings, id)
	t.names[name] = append(t.names[name], id)
	t.emit(Event{Kind: EvDeclare, Binding: id, Name: name})
	return b
}

// declarePoisoned declares a placeholder for a name an invalid operation would
// have introduced so later references to it are skipped, not reported.
func (t *Tracker) declarePoisoned(name string) {
	if name == "" {
		return
	}
	t.declare(name, true, false).Poisoned = true
}

func (t *Tracker) poison(bs ...*Binding) {
	for _, b := range bs {
		if b != nil {
			b.Poisoned = true
		}
	}
}

// resolve looks up name and reports UndeclaredBinding when it is not visible.
func (t *Tracker) resolve(name string) *Binding {
	if b := t.lookup(name); b != nil {
		return b
	}
	t.violate(UndeclaredBinding, name, NoIndex, "cannot find binding '%s' in this scope", name)
	t.declarePoisoned(name)
	return nil
}

func (t *Tracker) checkNotMoved(b *Binding, verb string) bool {
	if !b.Moved {
		return true
	}
	t.violate(UseAfterMove, b.Name, b.MovedAt, "%s of moved binding '%s'", verb, b.Name)
	t.poison(b)
	return false
}

// checkHeld reports a reference binding whose borrow was retired by a
// conflicting operation: the borrow was still needed at that point.
func (t *Tracker) checkHeld(b *Binding) bool {
	info := t.borrows.Info(b.Holds)
	if info == nil || !info.Retired || info.Reason != RetireConflict {
		return true
	}
	target := t.binding(info.Target)
	kind := ExclusiveConflict
	what := "a conflicting borrow of"
	switch info.RetiredBy {
	case oplog.KindMove, oplog.KindReturn:
		kind = BorrowActiveDuringMove
		what = "a move of"
	case oplog.KindAssign:
		kind = BorrowActiveDuringAssign
		what = "an assignment to"
	}
	t.violate(kind, target.Name, info.RetiredAt,
		"'%s' is used after %s '%s' while its borrow was still alive", b.Name, what, target.Name)
	t.poison(b, target)
	return false
}

// markUses records a use of every alive borrow of b and of the borrow b holds.
func (t *Tracker) markUses(b *Binding) {
	if b.Holds != NoBorrowID {
		t.borrows.MarkUsed(b.Holds, t.index)
	}
	for _, id := range t.borrows.Alive(b.ID) {
		t.borrows.MarkUsed(id, t.index)
	}
}

func (t *Tracker) use(op oplog.Op) bool {
	b := t.resolve(op.Name)
	if b == nil || !t.checkNotMoved(b, "use") || !t.checkHeld(b) {
		return false
	}
	t.markUses(b)
	t.emit(Event{Kind: EvUse, Binding: b.ID, Name: b.Name})
	return true
}

func (t *Tracker) move(op oplog.Op) bool {
	from := t.resolve(op.Name)
	if from == nil {
		t.declarePoisoned(op.Target)
		return false
	}
	if !t.checkNotMoved(from, "move") || !t.checkHeld(from) {
		t.declarePoisoned(op.Target)
		return false
	}
	t.retireUsed(from, oplog.KindMove, from.Copy)
	if issue := t.borrows.MoveAllowed(from.ID, from.Copy); !issue.OK() {
		verb := "move"
		if from.Copy {
			verb = "copy"
		}
		t.reportActive(BorrowActiveDuringMove, from, issue, verb)
		t.poison(from)
		t.declarePoisoned(op.Target)
		return false
	}

	t.markUses(from)
	if !from.Copy {
		from.Moved = true
		from.MovedAt = t.index
	}
	t.emit(Event{Kind: EvMove, Binding: from.ID, Name: from.Name, Note: "to " + op.Target})
	held := from.Holds
	to := t.declare(op.Target, op.Mutable, from.Copy)
	if !from.Copy && held != NoBorrowID {
		from.Holds = NoBorrowID
		to.Holds = held
		if info := t.borrows.Info(held); info != nil {
			info.Holder = to.ID
		}
	}
	return true
}

func (t *Tracker) borrow(op oplog.Op) bool {
	target := t.resolve(op.Name)
	fail := func() bool {
		if op.Holder == oplog.HolderNew {
			t.declarePoisoned(op.Target)
		}
		return false
	}
	if target == nil || !t.checkNotMoved(target, "borrow") {
		return fail()
	}

	var holder *Binding
	if op.Holder == oplog.HolderExisting {
		holder = t.resolve(op.Target)
		if holder == nil || !t.checkAssignable(holder) {
			t.poison(target)
			return false
		}
	}

	if op.Borrow == oplog.Exclusive && t.opts.StrictMutability && !target.Mutable {
		t.violate(ImmutableBorrow, target.Name, target.Declared,
			"cannot borrow '%s' as exclusive, as it is not declared as mutable", target.Name)
		t.poison(target, holder)
		return fail()
	}

	t.retireUsed(target, oplog.KindBorrow, op.Borrow == oplog.Shared)
	if issue := t.borrows.Check(op.Borrow, target.ID); !issue.OK() {
		t.reportBorrowConflict(target, op.Borrow, issue)
		t.poison(target, holder)
		return fail()
	}

	// the old value of an existing holder is overwritten before the new
	// borrow is stored
	if holder != nil {
		t.release(holder, RetireReassigned)
		holder.Moved = false
	}
	id, _ := t.borrows.Begin(op.Borrow, target.ID, NoBindingID, t.Depth(), t.index)
	info := t.borrows.Info(id)
	switch op.Holder {
	case oplog.HolderNone:
		top := &t.frames[len(t.frames)-1]
		top.borrows = append(top.borrows, id)
	case oplog.HolderNew:
		holder = t.declare(op.Target, false, false)
	}
	if holder != nil {
		holder.Holds = id
		info.Holder = holder.ID
	}
	t.emit(Event{Kind: EvBorrowStart, Binding: target.ID, Name: target.Name, Borrow: id, BorrowKind: op.Borrow})
	return true
}

// checkAssignable verifies b may receive a new value: it must be mutable
// and no alive borrow may observe it.
func (t *Tracker) checkAssignable(b *Binding) bool {
	if !b.Mutable {
		t.violate(ImmutableAssignment, b.Name, b.Declared,
			"cannot assign twice to immutable binding '%s'", b.Name)
		t.poison(b)
		return false
	}
	t.retireUsed(b, oplog.KindAssign, false)
	if issue := t.borrows.MutationAllowed(b.ID); !issue.OK() {
		t.reportActive(BorrowActiveDuringAssign, b, issue, "assign to")
		t.poison(b)
		return false
	}
	return true
}

func (t *Tracker) assign(op oplog.Op) bool {
	b := t.resolve(op.Name)
	if b == nil || !t.checkAssignable(b) {
		return false
	}
	b.Moved = false
	b.MovedAt = NoIndex
	t.release(b, RetireReassigned)
	t.emit(Event{Kind: EvWrite, Binding: b.ID, Name: b.Name})
	return true
}

func (t *Tracker) ret(op oplog.Op) bool {
	b := t.resolve(op.Name)
	if b == nil || !t.checkNotMoved(b, "return") || !t.checkHeld(b) {
		return false
	}
	if info := t.borrows.Info(b.Holds); info.Alive() {
		target := t.binding(info.Target)
		t.violate(DanglingReferenceRisk, target.Name, info.Introduced,
			"cannot return '%s': it refers to '%s', which is dropped when the log ends", b.Name, target.Name)
		t.poison(b)
		return false
	}
	if !b.Copy {
		t.retireUsed(b, oplog.KindReturn, false)
		if issue := t.borrows.MoveAllowed(b.ID, false); !issue.OK() {
			t.reportActive(BorrowActiveDuringMove, b, issue, "return")
			t.poison(b)
			return false
		}
		b.Moved = true
		b.MovedAt = t.index
	}
	t.emit(Event{Kind: EvReturn, Binding: b.ID, Name: b.Name})
	return true
}

func (t *Tracker) enterScope() {
	t.frames = append(t.frames, frame{depth: len(t.frames), opened: t.index})
	t.emit(Event{Kind: EvScopeEnter})
}

func (t *Tracker) exitScope() bool {
	if t.Depth() == 0 {
		t.violate(UnbalancedScope, "", NoIndex, "unmatched scope exit")
		return false
	}
	ok := t.checkDangling(&t.frames[len(t.frames)-1])
	t.closeFrame(RetireScopeExit)
	return ok
}

// checkDangling reports borrows of the frame's bindings stored in holders
// that outlive the frame.
func (t *Tracker) checkDangling(fr *frame) bool {
	ok := true
	for _, id := range fr.bindings {
		b := t.binding(id)
		for _, bid := range t.borrows.Alive(id) {
			info := t.borrows.Info(bid)
			holder := t.binding(info.Holder)
			if holder == nil || holder.Depth >= fr.depth || holder.Holds != bid {
				continue
			}
			t.endBorrow(bid, RetireTargetDropped)
			if holder.Poisoned {
				continue
			}
			t.violate(DanglingReferenceRisk, b.Name, info.Introduced,
				"'%s' does not live long enough: '%s' still refers to it after the scope ends", b.Name, holder.Name)
			t.poison(holder)
			ok = false
		}
	}
	return ok
}

func (t *Tracker) closeFrame(reason RetireReason) {
	fr := t.frames[len(t.frames)-1]
	for _, id := range fr.borrows {
		t.endBorrow(id, reason)
	}
	for i := len(fr.bindings) - 1; i >= 0; i-- {
		b := t.binding(fr.bindings[i])
		t.release(b, reason)
		for _, bid := range t.borrows.Alive(b.ID) {
			t.endBorrow(bid, RetireTargetDropped)
		}
		b.Dropped = true
		ids := t.names[b.Name]
		if n := len(ids); n > 0 && ids[n-1] == b.ID {
			if n == 1 {
				delete(t.names, b.Name)
			} else {
				t.names[b.Name] = ids[:n-1]
			}
		}
		t.emit(Event{Kind: EvDrop, Binding: b.ID, Name: b.Name})
	}
	t.emit(Event{Kind: EvScopeExit})
	t.frames = t.frames[:len(t.frames)-1]
}

// release ends the borrow stored in b, if any.
func (t *Tracker) release(b *Binding, reason RetireReason) {
	if b.Holds == NoBorrowID {
		return
	}
	if reason == RetireScopeExit {
		reason = RetireHolderDropped
	}
	t.endBorrow(b.Holds, reason)
	b.Holds = NoBorrowID
}

func (t *Tracker) endBorrow(id BorrowID, reason RetireReason) {
	if !t.borrows.Retire(id, t.index, reason, oplog.KindInvalid) {
		return
	}
	t.emitBorrowEnd(id, reason)
}

func (t *Tracker) retireUsed(b *Binding, by oplog.Kind, exclusiveOnly bool) {
	for _, id := range t.borrows.RetireUsed(b.ID, t.index, by, exclusiveOnly) {
		t.emitBorrowEnd(id, RetireConflict)
	}
}

func (t *Tracker) emitBorrowEnd(id BorrowID, reason RetireReason) {
	if !t.opts.Events {
		return
	}
	info := t.borrows.Info(id)
	name := ""
	if target := t.binding(info.Target); target != nil {
		name = target.Name
	}
	t.emit(Event{Kind: EvBorrowEnd, Binding: info.Target, Name: name, Borrow: id, BorrowKind: info.Kind, Note: reason.String()})
}

func (t *Tracker) reportBorrowConflict(target *Binding, kind oplog.BorrowKind, issue Issue) {
	prev := t.borrows.Info(issue.Borrow)
	var msg string
	switch {
	case kind == oplog.Shared:
		msg = "cannot borrow '%s' as shared because it is also borrowed as exclusive"
	case issue.Kind == IssueConflictShared:
		msg = "cannot borrow '%s' as exclusive because it is also borrowed as shared"
	default:
		msg = "cannot borrow '%s' as exclusive more than once at a time"
	}
	t.violate(ExclusiveConflict, target.Name, prev.Introduced, msg, target.Name)
}

func (t *Tracker) reportActive(kind ViolationKind, b *Binding, issue Issue, verb string) {
	prev := t.borrows.Info(issue.Borrow)
	how := "shared"
	if issue.Kind == IssueTaken {
		how = "exclusive"
	}
	t.violate(kind, b.Name, prev.Introduced, "cannot %s '%s' because it is borrowed (%s)", verb, b.Name, how)
}

func (t *Tracker) violate(kind ViolationKind, name string, related int, format string, args ...any) {
	v := Violation{
		Kind:    kind,
		Index:   t.index,
		Name:    name,
		Message: fmt.Sprintf(format, args...),
		Related: related,
	}
	if t.index < len(t.spans) {
		v.Span = t.spans[t.index]
	} else if n := len(t.spans); n > 0 {
		v.Span = t.spans[n-1]
	}
	if related >= 0 && related < len(t.spans) {
		v.RelatedSpan = t.spans[related]
	}
	t.violations = append(t.violations, v)
	t.emit(Event{Kind: EvViolation, Name: name, Issue: kind, Note: v.Message})
}

func (t *Tracker) emit(ev Event) {
	if !t.opts.Events {
		return
	}
	ev.Index = t.index
	ev.Depth = t.Depth()
	t.events = append(t.events, ev)
}
