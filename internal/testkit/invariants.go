// Package testkit holds assertions shared by parser tests and fuzz harnesses.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"borrowck/internal/oplog"
	"borrowck/internal/source"
)

// CheckSpanInvariants runs a minimal set of span invariants on parsed logs:
// 1) every op span is non-empty, points at sf and lies within its content
// 2) op spans follow source order without overlapping, across logs too
// 3) a log header precedes the first op of its log
func CheckSpanInvariants(logs []oplog.Log, sf *source.File) error {
	if sf == nil {
		return fmt.Errorf("nil file")
	}
	lenContent, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}

	var prevEnd uint32
	for li, lg := range logs {
		if !lg.Span.Empty() {
			if lg.Span.File != sf.ID {
				return fmt.Errorf("log %d header span file mismatch: got=%d want=%d", li, lg.Span.File, sf.ID)
			}
			if lg.Span.Start < prevEnd {
				return fmt.Errorf("log %d header %v overlaps previous op ending at %d", li, lg.Span, prevEnd)
			}
			if len(lg.Ops) > 0 && lg.Span.End > lg.Ops[0].Span.Start {
				return fmt.Errorf("log %d header %v does not precede first op %v", li, lg.Span, lg.Ops[0].Span)
			}
		}
		for i, op := range lg.Ops {
			sp := op.Span
			if sp.End <= sp.Start {
				return fmt.Errorf("log %d op %d (%s): empty span %v", li, i, op, sp)
			}
			if sp.File != sf.ID {
				return fmt.Errorf("log %d op %d: span file mismatch: got=%d want=%d", li, i, sp.File, sf.ID)
			}
			if sp.End > lenContent {
				return fmt.Errorf("log %d op %d: span end beyond content: %d > %d", li, i, sp.End, lenContent)
			}
			if sp.Start < prevEnd {
				return fmt.Errorf("log %d op %d: span %v starts before previous end %d", li, i, sp, prevEnd)
			}
			prevEnd = sp.End
		}
	}
	return nil
}
