package driver

import (
	"fmt"

	"borrowck/internal/borrow"
	"borrowck/internal/diag"
	"borrowck/internal/oplog"
)

var violationCodes = map[borrow.ViolationKind]diag.Code{
	borrow.UseAfterMove:             diag.BorUseAfterMove,
	borrow.ExclusiveConflict:        diag.BorExclusiveConflict,
	borrow.ImmutableAssignment:      diag.BorImmutableAssignment,
	borrow.BorrowActiveDuringMove:   diag.BorActiveDuringMove,
	borrow.BorrowActiveDuringAssign: diag.BorActiveDuringAssign,
	borrow.DanglingReferenceRisk:    diag.BorDanglingReference,
	borrow.UndeclaredBinding:        diag.BorUndeclaredBinding,
	borrow.UnbalancedScope:          diag.BorUnbalancedScope,
	borrow.ImmutableBorrow:          diag.BorImmutableBorrow,
}

// CodeFor maps a violation kind to its diagnostic code.
func CodeFor(kind borrow.ViolationKind) diag.Code {
	if code, ok := violationCodes[kind]; ok {
		return code
	}
	return diag.BorInfo
}

// violationDiagnostic turns v into an error diagnostic. The related operation
// becomes a note.
func violationDiagnostic(v borrow.Violation, log *oplog.Log) diag.Diagnostic {
	msg := v.Message
	if log.Name != oplog.DefaultLogName {
		msg = fmt.Sprintf("%s (log '%s')", msg, log.Name)
	}
	d := diag.New(diag.SevError, CodeFor(v.Kind), v.Span, msg)
	if note := relatedNote(v, log.Ops); note != "" {
		d = d.WithNote(v.RelatedSpan, note)
	}
	return d
}

func relatedNote(v borrow.Violation, ops []oplog.Op) string {
	if v.Related < 0 || v.Related >= len(ops) {
		return ""
	}
	related := ops[v.Related]
	if v.Kind == borrow.DanglingReferenceRisk && related.Kind == oplog.KindBorrow {
		return fmt.Sprintf("borrow of '%s' occurs here", v.Name)
	}
	switch related.Kind {
	case oplog.KindBorrow:
		if v.Index < len(ops) && ops[v.Index].Kind == oplog.KindBorrow {
			return fmt.Sprintf("previous borrow of '%s' occurs here", v.Name)
		}
		return fmt.Sprintf("conflicting borrow of '%s' occurs here", v.Name)
	case oplog.KindMove:
		return fmt.Sprintf("'%s' moved here", related.Name)
	case oplog.KindReturn:
		return fmt.Sprintf("'%s' returned here", related.Name)
	case oplog.KindAssign:
		return fmt.Sprintf("'%s' assigned here", related.Name)
	case oplog.KindDeclare:
		return fmt.Sprintf("'%s' declared here", related.Name)
	case oplog.KindEnterScope:
		return "scope opened here"
	default:
		return ""
	}
}

// skippedDiagnostic summarizes operations skipped in batch mode.
func skippedDiagnostic(res *borrow.Result, log *oplog.Log) (diag.Diagnostic, bool) {
	if len(res.Skipped) == 0 {
		return diag.Diagnostic{}, false
	}
	first := log.Ops[res.Skipped[0]].Span
	msg := fmt.Sprintf("%d operation(s) skipped after earlier violations", len(res.Skipped))
	if log.Name != oplog.DefaultLogName {
		msg = fmt.Sprintf("%s (log '%s')", msg, log.Name)
	}
	return diag.New(diag.SevInfo, diag.BorSkippedAfterViolation, first, msg), true
}
