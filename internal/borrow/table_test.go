package borrow

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"borrowck/internal/oplog"
)

func TestBorrowTableConflicts(t *testing.T) {
	bt := NewBorrowTable()
	const x BindingID = 1

	s1, issue := bt.Begin(oplog.Shared, x, NoBindingID, 0, 1)
	if !issue.OK() {
		t.Fatalf("first shared borrow: %+v", issue)
	}
	s2, issue := bt.Begin(oplog.Shared, x, NoBindingID, 0, 2)
	if !issue.OK() {
		t.Fatalf("second shared borrow: %+v", issue)
	}
	if got := bt.SharedCount(x); got != 2 {
		t.Fatalf("SharedCount = %d, want 2", got)
	}

	if _, issue := bt.Begin(oplog.Exclusive, x, NoBindingID, 0, 3); issue.Kind != IssueConflictShared || issue.Borrow != s1 {
		t.Fatalf("exclusive over shared: %+v", issue)
	}
	if issue := bt.MutationAllowed(x); issue.Kind != IssueFrozen {
		t.Fatalf("MutationAllowed = %+v, want frozen", issue)
	}
	if issue := bt.MoveAllowed(x, true); !issue.OK() {
		t.Fatalf("copy blocked by shared borrow: %+v", issue)
	}

	bt.MarkUsed(s1, 3)
	retired := bt.RetireUsed(x, 4, oplog.KindBorrow, false)
	if diff := cmp.Diff([]BorrowID{s1}, retired); diff != "" {
		t.Fatalf("RetireUsed mismatch (-want +got):\n%s", diff)
	}
	if info := bt.Info(s1); !info.Retired || info.Reason != RetireConflict || info.RetiredBy != oplog.KindBorrow || info.LastUse != 3 {
		t.Fatalf("unexpected info after retire: %+v", info)
	}
	if bt.Retire(s1, 5, RetireScopeExit, oplog.KindInvalid) {
		t.Fatal("retiring twice must be a no-op")
	}

	bt.Retire(s2, 5, RetireScopeExit, oplog.KindInvalid)
	ex, issue := bt.Begin(oplog.Exclusive, x, NoBindingID, 0, 6)
	if !issue.OK() {
		t.Fatalf("exclusive after retire: %+v", issue)
	}
	if bt.Exclusive(x) != ex {
		t.Fatalf("Exclusive = %d, want %d", bt.Exclusive(x), ex)
	}
	if issue := bt.MoveAllowed(x, true); issue.Kind != IssueTaken {
		t.Fatalf("copy under exclusive borrow: %+v", issue)
	}
	if _, issue := bt.Begin(oplog.Shared, x, NoBindingID, 0, 7); issue.Kind != IssueConflictExclusive {
		t.Fatalf("shared over exclusive: %+v", issue)
	}
	if n := len(bt.Infos()); n != 3 {
		t.Fatalf("Infos len = %d, want 3", n)
	}
}

func TestBorrowTableUnusedSurvivesConflict(t *testing.T) {
	bt := NewBorrowTable()
	const x BindingID = 7
	id, _ := bt.Begin(oplog.Exclusive, x, NoBindingID, 0, 0)
	if retired := bt.RetireUsed(x, 1, oplog.KindAssign, false); len(retired) != 0 {
		t.Fatalf("unused borrow retired: %v", retired)
	}
	if !bt.Info(id).Alive() {
		t.Fatal("unused borrow must stay alive")
	}
	if bt.Info(NoBorrowID) != nil || bt.Info(99) != nil {
		t.Fatal("Info must return nil for unknown IDs")
	}
}
