// Package diag defines the diagnostic model shared by the parser, the borrow
// tracker and the driver.
//
// Diagnostic is the central record:
//
//   - Severity – Info, Warning or Error.
//   - Code – compact numeric identifier with a stable string form (SYN2xxx for
//     operation-log syntax, BOR3xxx for ownership violations, IO4xxx for I/O).
//   - Message – short, actionable text.
//   - Primary – the span of the offending operation.
//   - Notes – secondary spans, e.g. where the conflicting borrow was taken.
//
// Producers emit through a Reporter; BagReporter collects into a Bag which
// supports sorting, deduplication and filtering. Package diag does no
// formatting or IO; rendering lives in internal/diagfmt.
package diag
