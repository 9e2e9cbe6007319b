// Package engine implements the poll state engine.
//
// The Engine orchestrates poll lifecycle and vote processing: input
// validation, delegation to the store's atomic operations, and publishing
// of change events after each committed transition. No mutable state
// (delegates to the store), so no engine-level locking.
package engine
