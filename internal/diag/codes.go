package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Syntax of operation logs
	SynInfo            Code = 2000
	SynUnknownOp       Code = 2001
	SynExpectName      Code = 2002
	SynInvalidName     Code = 2003
	SynUnexpectedToken Code = 2004
	SynEmptyLog        Code = 2005
	SynDuplicateLog    Code = 2006

	// Ownership and borrow violations
	BorInfo                  Code = 3000
	BorUseAfterMove          Code = 3001
	BorExclusiveConflict     Code = 3002
	BorImmutableAssignment   Code = 3003
	BorActiveDuringMove      Code = 3004
	BorActiveDuringAssign    Code = 3005
	BorDanglingReference     Code = 3006
	BorUndeclaredBinding     Code = 3007
	BorUnbalancedScope       Code = 3008
	BorImmutableBorrow       Code = 3009
	BorSkippedAfterViolation Code = 3010

	// I/O
	IOLoadFileError Code = 4001
)

var codeDescription = map[Code]string{
	UnknownCode:              "Unknown error",
	SynInfo:                  "Syntax information",
	SynUnknownOp:             "Unknown operation",
	SynExpectName:            "Expected binding name",
	SynInvalidName:           "Invalid binding name",
	SynUnexpectedToken:       "Unexpected token",
	SynEmptyLog:              "Log has no operations",
	SynDuplicateLog:          "Duplicate log name",
	BorInfo:                  "Borrow information",
	BorUseAfterMove:          "Use after move",
	BorExclusiveConflict:     "Conflicting borrow",
	BorImmutableAssignment:   "Assignment to immutable binding",
	BorActiveDuringMove:      "Move while borrowed",
	BorActiveDuringAssign:    "Assignment while borrowed",
	BorDanglingReference:     "Reference outlives its referent",
	BorUndeclaredBinding:     "Binding not in scope",
	BorUnbalancedScope:       "Unbalanced scope",
	BorImmutableBorrow:       "Exclusive borrow of immutable binding",
	BorSkippedAfterViolation: "Operations skipped after violation",
	IOLoadFileError:          "Failed to load file",
}

// ID returns the stable short identifier, e.g. "BOR3001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("BOR%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("IO%04d", ic)
	default:
		return fmt.Sprintf("E%04d", ic)
	}
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
