// Package scheduler drives batches of tool calls from validation through
// execution to a terminal state.
//
// Each call in a batch moves through validating, optional awaiting_approval,
// scheduled and executing before landing on success, error or cancelled.
// Read-only calls execute concurrently; a mutating or destructive call holds
// the window alone. Failures are isolated per call, and the batch result
// reports every record in its original request order.
//
// Invariants:
//   - A record never leaves a terminal state, and no transition skips backward.
//   - An exclusive call never shares its executing window with another call.
//   - A blocked exclusive call does not hold back later read-only calls.
//   - CancelAll is idempotent and never interrupts an executor mid-flight; it
//     waits for the handler to return before the record turns cancelled.
//   - Observer callbacks run on a dispatch goroutine and cannot stall a call.
//   - OnBatchComplete fires exactly once per batch, after every record is
//     terminal and every queued event has been delivered.
//
// Usage:
//
//	sched := scheduler.New(registry, gate)
//	defer sched.Close()
//
//	result, err := sched.RunBatch(ctx, []toolcall.Request{
//		{ID: "call_1", Tool: "clock", Args: nil},
//		{ID: "call_2", Tool: "file-stat", Args: map[string]interface{}{"path": "/tmp"}},
//	})
package scheduler
