package borrow

import (
	"fmt"
	"strings"
)

// Mode selects how the tracker reacts to a violation.
type Mode uint8

const (
	// ModeFirst stops at the first violation.
	ModeFirst Mode = iota
	// ModeBatch keeps collecting violations, skipping dependent operations.
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "first"
}

// ParseMode converts "first" or "batch" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return ModeFirst, nil
	case "batch":
		return ModeBatch, nil
	default:
		return ModeFirst, fmt.Errorf("invalid check mode: %q (expected: first|batch)", s)
	}
}

// Options configures a Tracker.
type Options struct {
	Mode Mode
	// StrictMutability rejects exclusive borrows of immutable bindings.
	StrictMutability bool
	// Events records an Event log in the Result.
	Events bool
}

// Fingerprint identifies the options that influence results; used as part of
// cache keys.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("mode=%s;strict=%t", o.Mode, o.StrictMutability)
}
