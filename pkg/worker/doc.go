// Package worker provides a bounded, generic worker pool.
//
// The pool accepts typed work items via Submit, processes them on a fixed
// number of goroutines, and drops work with ErrQueueFull rather than
// blocking the submitter when the queue is at capacity. A single-worker
// pool preserves submission order, which the command dispatcher relies on.
package worker
