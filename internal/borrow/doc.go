// Package borrow checks operation logs against ownership rules.
//
// A Tracker consumes oplog operations in program order. It keeps a stack of
// scope frames, resolves names to the innermost visible Binding and records
// every borrow in a BorrowTable that maps a binding to its alive shared
// borrows and its alive exclusive borrow.
//
// # Liveness
//
// A borrow is alive from its introduction until its last use. The last use is
// decided with a forward rule: a borrow counts as used once a Use touches it.
// When an operation that conflicts with the borrow arrives (a conflicting
// Borrow, a Move or an Assign of the same binding), every used borrow of that
// binding is retired there, because its last use lay before the request.
// Borrows that were never used stay alive and therefore conflict. Scope exit
// ends the borrows introduced in the scope and every borrow of a binding
// declared in it.
//
// If a reference binding is used again after its borrow was retired by a
// conflicting operation, the lifetimes overlapped after all; the later use is
// reported with the kind of the retiring operation.
//
// # Failure modes
//
// ModeFirst stops at the first violation. ModeBatch keeps going: the failing
// operation has no effect, the bindings it touched are poisoned and later
// operations on poisoned bindings are skipped.
package borrow
