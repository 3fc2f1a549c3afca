// Package store provides the shared in-memory record table for livegrid.
//
// This package is internal to livegrid and holds the only mutable state that
// the refresh path and the readers (HTTP handlers, grid views) share. The
// refresh worker is the single writer; any number of goroutines may read.
//
// The main components are:
//
//   - [Store]: Interface defining lookup, insert and update operations
//   - [MemoryStore]: Lock-protected, insertion-ordered implementation of Store
//   - [Record]: A named amount with the time it was last changed
//
// Records are handled by value. Readers always receive copies, so a record
// being rewritten by the refresh worker is never observed half-built.
package store
