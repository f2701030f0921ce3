// Package storage persists reminder state: the set of fired trigger keys
// per task and the registry of delivered message handles.
//
// Drivers:
//   - "file": two JSON documents in a directory, each replaced atomically
//     on every write
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
