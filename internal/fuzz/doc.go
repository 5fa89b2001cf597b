// Package fuzztests houses Go fuzz harnesses for the operation log parser and
// the ownership checker. They guard against panics, span corruption and
// nondeterminism on arbitrary inputs.
//
// Назначение: прогонять байты через FileSet -> oplog.Parse -> borrow.Check.
//
// Не делает: генерацию корпусов, запись файлов, выполнение CLI.
package fuzztests
