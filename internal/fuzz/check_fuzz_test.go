package fuzztests

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"borrowck/internal/borrow"
)

// FuzzCheckProperties runs every parsed log through both modes and checks
// properties that hold for any input.
func FuzzCheckProperties(f *testing.F) {
	addCorpusSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		logs, _, _ := parseInput(clampInput(input))
		for _, lg := range logs {
			if lg.Broken {
				continue
			}
			first := borrow.Check(lg.Ops, borrow.Options{})
			if diff := cmp.Diff(first, borrow.Check(lg.Ops, borrow.Options{})); diff != "" {
				t.Fatalf("Check is not deterministic:\n%s", diff)
			}
			if len(first.Violations) > 1 {
				t.Fatalf("first mode reported %d violations", len(first.Violations))
			}

			batch := borrow.Check(lg.Ops, borrow.Options{Mode: borrow.ModeBatch, StrictMutability: true, Events: true})
			for _, v := range batch.Violations {
				if v.Index < 0 || v.Index > len(lg.Ops) {
					t.Fatalf("violation index %d out of range [0,%d]", v.Index, len(lg.Ops))
				}
				if v.Related >= len(lg.Ops) {
					t.Fatalf("related index %d out of range", v.Related)
				}
			}
			for i := 1; i < len(batch.Skipped); i++ {
				if batch.Skipped[i] <= batch.Skipped[i-1] {
					t.Fatalf("skipped indices not ascending: %v", batch.Skipped)
				}
			}

			plain := borrow.Check(lg.Ops, borrow.Options{Mode: borrow.ModeBatch})
			v, ok := first.First()
			w, ok2 := plain.First()
			if ok != ok2 || (ok && v != w) {
				t.Fatalf("first violation differs between modes: %v vs %v", v, w)
			}
		}
	})
}
