// Package refresh produces and schedules change batches for livegrid.
//
// This package is internal to livegrid. It mutates the shared store on a
// fixed-rate schedule and hands the names of changed records to a callback,
// which the livegrid orchestrator wires to the broadcaster.
//
// The main components are:
//
//   - [Worker]: One refresh cycle; bumps amounts and occasionally adds a record
//   - [Generator]: Source of sample records not yet in the store
//   - [Scheduler]: Runs a [Refresher] at a fixed rate on its own goroutine
//
// Failures are contained at two boundaries. The worker converts panics into
// errors, and the scheduler recovers around both the worker and its
// callbacks. A failed cycle is reported and the schedule keeps going.
package refresh
