package borrow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"borrowck/internal/oplog"
)

func violationsOf(res *Result) []string {
	out := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, v.String())
	}
	return out
}

func TestCheckScenarios(t *testing.T) {
	tests := []struct {
		name string
		ops  []oplog.Op
		opts Options
		want []string
	}{
		{
			name: "shared borrows then use",
			ops: []oplog.Op{
				oplog.Declare("s", false),
				oplog.Borrow("s", oplog.Shared),
				oplog.Use("s"),
				oplog.Borrow("s", oplog.Shared),
				oplog.Use("s"),
			},
		},
		{
			name: "exclusive then shared",
			ops: []oplog.Op{
				oplog.Declare("s", true),
				oplog.Borrow("s", oplog.Exclusive),
				oplog.Borrow("s", oplog.Shared),
			},
			want: []string{"Violation(ExclusiveConflict, 2)"},
		},
		{
			name: "use after move",
			ops: []oplog.Op{
				oplog.Declare("s", false),
				oplog.Move("s", "t"),
				oplog.Use("s"),
			},
			want: []string{"Violation(UseAfterMove, 2)"},
		},
		{
			name: "two exclusive borrows",
			ops: []oplog.Op{
				oplog.Declare("s", true),
				oplog.BorrowAs("s", oplog.Exclusive, "a"),
				oplog.BorrowAs("s", oplog.Exclusive, "b"),
			},
			want: []string{"Violation(ExclusiveConflict, 2)"},
		},
		{
			name: "exclusive retired by last use",
			ops: []oplog.Op{
				oplog.Declare("s", true),
				oplog.BorrowAs("s", oplog.Exclusive, "a"),
				oplog.Use("a"),
				oplog.BorrowAs("s", oplog.Exclusive, "b"),
				oplog.Use("b"),
			},
		},
		{
			name: "retired borrow used again",
			ops: []oplog.Op{
				oplog.Declare("s", true),
				oplog.BorrowAs("s", oplog.Shared, "r1"),
				oplog.Use("r1"),
				oplog.BorrowAs("s", oplog.Exclusive, "r2"),
				oplog.Use("r1"),
			},
			want: []string{"Violation(ExclusiveConflict, 4)"},
		},
		{
			name: "shared borrows ended before exclusive",
			ops: []oplog.Op{
				oplog.Declare("s", true),
				oplog.BorrowAs("s", oplog.Shared, "r1"),
				oplog.BorrowAs("s", oplog.Shared, "r2"),
				oplog.Use("r1"),
				oplog.Use("r2"),
				oplog.BorrowAs("s", oplog.Exclusive, "r3"),
				oplog.Use("r3"),
			},
		},
		{
			name: "immutable assignment",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.Assign("x"),
			},
			want: []string{"Violation(ImmutableAssignment, 1)"},
		},
		{
			name: "mutable assignment",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.Assign("x"),
			},
		},
		{
			name: "move while borrowed",
			ops: []oplog.Op{
				oplog.Declare("s", false),
				oplog.BorrowAs("s", oplog.Shared, "r"),
				oplog.Move("s", "t"),
			},
			want: []string{"Violation(BorrowActiveDuringMove, 2)"},
		},
		{
			name: "move after last use",
			ops: []oplog.Op{
				oplog.Declare("s", false),
				oplog.BorrowAs("s", oplog.Shared, "r"),
				oplog.Use("r"),
				oplog.Move("s", "t"),
				oplog.Use("t"),
			},
		},
		{
			name: "reference used after move of target",
			ops: []oplog.Op{
				oplog.Declare("s", false),
				oplog.BorrowAs("s", oplog.Shared, "r"),
				oplog.Use("r"),
				oplog.Move("s", "t"),
				oplog.Use("r"),
			},
			want: []string{"Violation(BorrowActiveDuringMove, 4)"},
		},
		{
			name: "copy while shared borrowed",
			ops: []oplog.Op{
				oplog.DeclareCopy("n", false),
				oplog.BorrowAs("n", oplog.Shared, "r"),
				oplog.Move("n", "m"),
				oplog.Use("n"),
				oplog.Use("r"),
			},
		},
		{
			name: "copy while exclusive borrowed",
			ops: []oplog.Op{
				oplog.DeclareCopy("n", true),
				oplog.BorrowAs("n", oplog.Exclusive, "r"),
				oplog.Move("n", "m"),
			},
			want: []string{"Violation(BorrowActiveDuringMove, 2)"},
		},
		{
			name: "assign while borrowed",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.BorrowAs("x", oplog.Shared, "r"),
				oplog.Assign("x"),
			},
			want: []string{"Violation(BorrowActiveDuringAssign, 2)"},
		},
		{
			name: "reference used after assign",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.BorrowAs("x", oplog.Shared, "r"),
				oplog.Use("r"),
				oplog.Assign("x"),
				oplog.Use("r"),
			},
			want: []string{"Violation(BorrowActiveDuringAssign, 4)"},
		},
		{
			name: "assign reinitializes moved binding",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.Move("x", "y"),
				oplog.Assign("x"),
				oplog.Use("x"),
			},
		},
		{
			name: "dangling reference",
			ops: []oplog.Op{
				oplog.Declare("r", true),
				oplog.EnterScope(),
				oplog.Declare("x", false),
				oplog.BorrowInto("x", oplog.Shared, "r"),
				oplog.ExitScope(),
				oplog.Use("r"),
			},
			want: []string{"Violation(DanglingReferenceRisk, 4)"},
		},
		{
			name: "reference dropped with its target",
			ops: []oplog.Op{
				oplog.EnterScope(),
				oplog.Declare("x", false),
				oplog.BorrowAs("x", oplog.Shared, "r"),
				oplog.Use("r"),
				oplog.ExitScope(),
			},
		},
		{
			name: "store into immutable holder",
			ops: []oplog.Op{
				oplog.Declare("r", false),
				oplog.Declare("x", false),
				oplog.BorrowInto("x", oplog.Shared, "r"),
			},
			want: []string{"Violation(ImmutableAssignment, 2)"},
		},
		{
			name: "anonymous borrow ends at scope exit",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.EnterScope(),
				oplog.Borrow("x", oplog.Exclusive),
				oplog.ExitScope(),
				oplog.Borrow("x", oplog.Exclusive),
			},
		},
		{
			name: "shadowed binding",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.Move("x", "y"),
				oplog.EnterScope(),
				oplog.Declare("x", false),
				oplog.Use("x"),
				oplog.ExitScope(),
				oplog.Use("x"),
			},
			want: []string{"Violation(UseAfterMove, 6)"},
		},
		{
			name: "use out of scope",
			ops: []oplog.Op{
				oplog.EnterScope(),
				oplog.Declare("x", false),
				oplog.ExitScope(),
				oplog.Use("x"),
			},
			want: []string{"Violation(UndeclaredBinding, 3)"},
		},
		{
			name: "unmatched exit",
			ops:  []oplog.Op{oplog.ExitScope()},
			want: []string{"Violation(UnbalancedScope, 0)"},
		},
		{
			name: "scope left open",
			ops: []oplog.Op{
				oplog.EnterScope(),
				oplog.Declare("x", false),
			},
			want: []string{"Violation(UnbalancedScope, 2)"},
		},
		{
			name: "exclusive borrow of immutable is allowed by default",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.Borrow("x", oplog.Exclusive),
			},
		},
		{
			name: "exclusive borrow of immutable with strict mutability",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.Borrow("x", oplog.Exclusive),
			},
			opts: Options{StrictMutability: true},
			want: []string{"Violation(ImmutableBorrow, 1)"},
		},
		{
			name: "moved reference keeps its borrow",
			ops: []oplog.Op{
				oplog.Declare("x", true),
				oplog.BorrowAs("x", oplog.Exclusive, "r"),
				oplog.Move("r", "q"),
				oplog.Borrow("x", oplog.Shared),
				oplog.Use("q"),
			},
			want: []string{"Violation(ExclusiveConflict, 4)"},
		},
		{
			name: "return owned value",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.Return("x"),
				oplog.Use("x"),
			},
			want: []string{"Violation(UseAfterMove, 2)"},
		},
		{
			name: "return reference",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.BorrowAs("x", oplog.Shared, "r"),
				oplog.Return("r"),
			},
			want: []string{"Violation(DanglingReferenceRisk, 2)"},
		},
		{
			name: "return borrowed value",
			ops: []oplog.Op{
				oplog.Declare("x", false),
				oplog.BorrowAs("x", oplog.Shared, "r"),
				oplog.Return("x"),
			},
			want: []string{"Violation(BorrowActiveDuringMove, 2)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(tt.ops, tt.opts)
			if diff := cmp.Diff(tt.want, violationsOf(res), cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("violations mismatch (-want +got):\n%s", diff)
			}
			if res.Valid() != (len(tt.want) == 0) {
				t.Fatalf("Valid() = %v, want %v", res.Valid(), len(tt.want) == 0)
			}
		})
	}
}

func TestCheckRelated(t *testing.T) {
	res := Check([]oplog.Op{
		oplog.Declare("s", true),
		oplog.Use("s"),
		oplog.BorrowAs("s", oplog.Exclusive, "a"),
		oplog.BorrowAs("s", oplog.Shared, "b"),
	}, Options{})
	v, ok := res.First()
	if !ok {
		t.Fatal("expected a violation")
	}
	if v.Kind != ExclusiveConflict || v.Index != 3 || v.Related != 2 || v.Name != "s" {
		t.Fatalf("unexpected violation: %+v", v)
	}
	if v.Error() == "" || v.Message == "" {
		t.Fatal("violation without message")
	}
}

func TestCheckStopsAtFirst(t *testing.T) {
	ops := []oplog.Op{
		oplog.Declare("x", false),
		oplog.Assign("x"),
		oplog.Use("y"),
	}
	res := Check(ops, Options{})
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violationsOf(res))
	}
	if res.Checked != 2 {
		t.Fatalf("Checked = %d, want 2", res.Checked)
	}
}

func TestBatchMode(t *testing.T) {
	ops := []oplog.Op{
		oplog.Declare("x", false),                 // 0
		oplog.Assign("x"),                         // 1 immutable
		oplog.Use("x"),                            // 2 skipped
		oplog.Use("nope"),                         // 3 undeclared
		oplog.Use("nope"),                         // 4 skipped
		oplog.Declare("s", true),                  // 5
		oplog.BorrowAs("s", oplog.Exclusive, "a"), // 6
		oplog.BorrowAs("s", oplog.Shared, "b"),    // 7 conflict
		oplog.Use("b"),                            // 8 skipped, b poisoned
		oplog.Declare("z", false),                 // 9
		oplog.Move("z", "w"),                      // 10
		oplog.Use("z"),                            // 11 use after move
		oplog.ExitScope(),                         // 12 unbalanced
	}
	res := Check(ops, Options{Mode: ModeBatch})
	want := []string{
		"Violation(ImmutableAssignment, 1)",
		"Violation(UndeclaredBinding, 3)",
		"Violation(ExclusiveConflict, 7)",
		"Violation(UseAfterMove, 11)",
		"Violation(UnbalancedScope, 12)",
	}
	if diff := cmp.Diff(want, violationsOf(res)); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 4, 8}, res.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchViolationHasNoEffect(t *testing.T) {
	ops := []oplog.Op{
		oplog.Declare("s", false),
		oplog.BorrowAs("s", oplog.Shared, "r"),
		oplog.Move("s", "t"),
	}
	tr := NewTracker(Options{Mode: ModeBatch})
	for _, op := range ops {
		if !tr.Step(op) {
			t.Fatal("batch mode must not stop")
		}
	}
	st, ok := tr.State("s")
	if !ok || st.Kind != StateBorrowedShared || st.Shared != 1 {
		t.Fatalf("state of s = %v, want borrowed(shared, 1)", st)
	}
	if _, ok := tr.State("t"); !ok {
		t.Fatal("failed move must still introduce a poisoned destination")
	}
}

func TestTrackerStates(t *testing.T) {
	tr := NewTracker(Options{})
	state := func(name string) string {
		t.Helper()
		st, ok := tr.State(name)
		if !ok {
			return "undeclared"
		}
		return st.String()
	}
	steps := []struct {
		op   oplog.Op
		name string
		want string
	}{
		{oplog.Declare("x", true), "x", "owned"},
		{oplog.BorrowAs("x", oplog.Shared, "a"), "x", "borrowed(shared, 1)"},
		{oplog.BorrowAs("x", oplog.Shared, "b"), "x", "borrowed(shared, 2)"},
		{oplog.Use("x"), "x", "borrowed(shared, 2)"},
		{oplog.BorrowAs("x", oplog.Exclusive, "c"), "x", "borrowed(exclusive)"},
		{oplog.Use("c"), "x", "borrowed(exclusive)"},
		{oplog.Assign("x"), "x", "owned"},
		{oplog.Move("x", "y"), "x", "moved"},
		{oplog.EnterScope(), "y", "owned"},
		{oplog.Declare("y", false), "y", "owned"},
		{oplog.ExitScope(), "y", "owned"},
	}
	for i, step := range steps {
		if !tr.Step(step.op) {
			t.Fatalf("step %d (%s) failed: %v", i, step.op, tr.Finish().Violations)
		}
		if got := state(step.name); got != step.want {
			t.Fatalf("after step %d (%s): state of %s = %s, want %s", i, step.op, step.name, got, step.want)
		}
	}
	res := tr.Finish()
	if !res.Valid() {
		t.Fatalf("unexpected violations: %v", violationsOf(res))
	}
	for _, b := range res.Bindings {
		if b.State.Kind != StateDropped {
			t.Fatalf("binding %s not dropped at end of log: %s", b.Name, b.State)
		}
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	ops := []oplog.Op{
		oplog.Declare("s", true),
		oplog.BorrowAs("s", oplog.Shared, "r"),
		oplog.EnterScope(),
		oplog.Declare("t", false),
		oplog.BorrowAs("t", oplog.Exclusive, "u"),
		oplog.Use("u"),
		oplog.ExitScope(),
		oplog.Assign("s"),
		oplog.Use("r"),
	}
	opts := Options{Mode: ModeBatch, Events: true}
	first := Check(ops, opts)
	second := Check(ops, opts)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("results differ (-first +second):\n%s", diff)
	}
}

func TestEvents(t *testing.T) {
	res := Check([]oplog.Op{
		oplog.EnterScope(),
		oplog.Declare("x", false),
		oplog.Borrow("x", oplog.Shared),
		oplog.ExitScope(),
	}, Options{Events: true})
	var kinds []string
	for _, ev := range res.Events {
		kinds = append(kinds, ev.Kind.String())
	}
	want := []string{"scope_enter", "declare", "borrow_start", "borrow_end", "drop", "scope_exit", "scope_exit"}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if len(Check(nil, Options{}).Events) != 0 {
		t.Fatal("events recorded without Options.Events")
	}
}
